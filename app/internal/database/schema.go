package database

// EnsureSchema creates all necessary tables. Statements are idempotent.
func (s *SQLite) EnsureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS stores (
  id INTEGER PRIMARY KEY,
  store_num TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL,
  region_id INTEGER NOT NULL DEFAULT 0,
  area_id INTEGER NOT NULL DEFAULT 0,
  client_region_id INTEGER NOT NULL DEFAULT 0,
  latitude REAL NOT NULL DEFAULT 0,
  longitude REAL NOT NULL DEFAULT 0,
  running INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_stores_region ON stores(region_id, area_id);

CREATE TABLE IF NOT EXISTS camera_info (
  store_id INTEGER NOT NULL,
  camera_no INTEGER NOT NULL,
  pos_id TEXT NOT NULL DEFAULT '',
  camera_ip TEXT NOT NULL DEFAULT '',
  setup_date TEXT,
  PRIMARY KEY (store_id, camera_no)
);
CREATE INDEX IF NOT EXISTS idx_camera_info_pos ON camera_info(store_id, pos_id);

CREATE TABLE IF NOT EXISTS aisle_images (
  store_id INTEGER NOT NULL,
  camera_no INTEGER NOT NULL,
  PRIMARY KEY (store_id, camera_no)
);

CREATE TABLE IF NOT EXISTS status_samples (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  store_id INTEGER NOT NULL,
  camera_no INTEGER,
  system_name TEXT NOT NULL DEFAULT '',
  is_online INTEGER NOT NULL,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_status_samples_store ON status_samples(store_id, created_at);
CREATE INDEX IF NOT EXISTS idx_status_samples_created ON status_samples(created_at);

CREATE TABLE IF NOT EXISTS latest_status (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  store_id INTEGER NOT NULL,
  camera_no INTEGER,
  is_online INTEGER NOT NULL,
  updated_at TEXT NOT NULL,
  last_active TEXT
);
CREATE INDEX IF NOT EXISTS idx_latest_status_store ON latest_status(store_id, camera_no);

CREATE TABLE IF NOT EXISTS stream_data (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  store_id INTEGER NOT NULL,
  pos_id TEXT NOT NULL,
  fps REAL,
  bitrate REAL,
  frame_width INTEGER NOT NULL DEFAULT 0,
  frame_height INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stream_data_created ON stream_data(created_at);

CREATE TABLE IF NOT EXISTS jitter_data (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  store_id INTEGER NOT NULL,
  pos_id TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jitter_data_pos ON jitter_data(store_id, pos_id);

CREATE TABLE IF NOT EXISTS vtc_data (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  store_id INTEGER NOT NULL,
  pos_id TEXT NOT NULL,
  breakage_duration INTEGER NOT NULL DEFAULT 0,
  updated_at TEXT NOT NULL,
  UNIQUE (store_id, pos_id)
);

CREATE TABLE IF NOT EXISTS application_store_status (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  store_id INTEGER NOT NULL,
  cam_no INTEGER,
  script_name TEXT NOT NULL,
  status TEXT NOT NULL,
  company TEXT NOT NULL DEFAULT '',
  tech_support INTEGER NOT NULL DEFAULT 0,
  tech_support_status INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_app_status_store ON application_store_status(store_id, script_name);
CREATE INDEX IF NOT EXISTS idx_app_status_created ON application_store_status(created_at);
`)
	return err
}

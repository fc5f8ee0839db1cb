package storage

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE notifications (
	id              TEXT PRIMARY KEY,
	package         TEXT NOT NULL,
	app_name        TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	arrived_at      INTEGER NOT NULL,
	folder          TEXT NOT NULL,
	priority        INTEGER NOT NULL CHECK (priority BETWEEN 1 AND 3),
	is_read         INTEGER NOT NULL DEFAULT 0,
	processing_ms   INTEGER NOT NULL DEFAULT 0,
	delivered       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX idx_notifications_folder ON notifications(folder, arrived_at);
CREATE INDEX idx_notifications_pending ON notifications(priority, delivered, arrived_at);

CREATE TABLE folders (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE COLLATE NOCASE,
	description TEXT NOT NULL DEFAULT '',
	is_default  INTEGER NOT NULL DEFAULT 0,
	sort_order  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE monitored_apps (
	package  TEXT PRIMARY KEY,
	app_name TEXT NOT NULL DEFAULT '',
	enabled  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

INSERT INTO folders(id, name, description, is_default, sort_order) VALUES
	('work', 'Work', 'Job-related notifications (emails from colleagues, calendar invites, project updates, work apps like Slack, Jira)', 1, 0),
	('personal', 'Personal', 'Family, friends, personal accounts, social media, messaging from personal contacts', 1, 1),
	('promotions', 'Promotions', 'Marketing, sales, deals, newsletters, advertisements, discount offers', 1, 2),
	('alerts', 'Alerts', 'System alerts, security, deliveries, bills, account notifications, reminders', 1, 3);
`,
	},
}

// Package testhelpers provides database fixtures for tests.
package testhelpers

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// fixtureSchema is a small restaurant-reservation dataset: enough tables
// and rows to exercise joins, aggregates and the row cap.
const fixtureSchema = `
CREATE TABLE members (
    member_id INTEGER PRIMARY KEY,
    postal_code TEXT,
    gender TEXT,
    age INTEGER,
    registration_date TEXT
);

CREATE TABLE restaurants (
    restaurant_id INTEGER PRIMARY KEY,
    name TEXT,
    genre TEXT,
    postal_code TEXT,
    registration_date TEXT
);

CREATE TABLE reservations (
    reservation_id INTEGER PRIMARY KEY,
    member_id INTEGER,
    restaurant_id INTEGER,
    reservation_date TEXT,
    visit_date TEXT
);

CREATE TABLE access_logs (
    session_id TEXT PRIMARY KEY,
    member_id INTEGER,
    restaurant_id INTEGER,
    access_date TEXT
);

CREATE TABLE reviews (
    review_id INTEGER PRIMARY KEY,
    member_id INTEGER,
    restaurant_id INTEGER,
    rating INTEGER,
    post_date TEXT
);

CREATE TABLE favorites (
    member_id INTEGER,
    restaurant_id INTEGER,
    registration_date TEXT,
    PRIMARY KEY (member_id, restaurant_id)
);

INSERT INTO members (member_id, postal_code, gender, age, registration_date) VALUES
    (1, '150-0001', 'F', 34, '2024-01-10'),
    (2, '160-0002', 'M', 28, '2024-02-14'),
    (3, '170-0003', 'F', 37, '2024-03-03'),
    (4, '180-0004', 'M', 45, '2024-04-21'),
    (5, '190-0005', 'F', 31, '2024-05-30');

INSERT INTO restaurants (restaurant_id, name, genre, postal_code, registration_date) VALUES
    (1, 'Sakura Sushi', 'sushi', '150-0001', '2023-11-01'),
    (2, 'Trattoria Sole', 'italian', '160-0002', '2023-12-15');

INSERT INTO reservations (reservation_id, member_id, restaurant_id, reservation_date, visit_date) VALUES
    (1, 1, 1, '2024-06-01', '2024-06-08'),
    (2, 2, 1, '2024-06-02', '2024-06-09'),
    (3, 3, 2, '2024-06-03', '2024-06-10'),
    (4, 1, 2, '2024-06-04', '2024-06-11');

INSERT INTO reviews (review_id, member_id, restaurant_id, rating, post_date) VALUES
    (1, 1, 1, 5, '2024-06-09'),
    (2, 2, 1, 4, '2024-06-10'),
    (3, 3, 2, 3, '2024-06-11');

INSERT INTO access_logs (session_id, member_id, restaurant_id, access_date) VALUES
    ('s-001', 1, 1, '2024-06-01'),
    ('s-002', 2, 1, '2024-06-02'),
    ('s-003', 3, 2, '2024-06-03');

INSERT INTO favorites (member_id, restaurant_id, registration_date) VALUES
    (1, 1, '2024-06-05'),
    (3, 2, '2024-06-06');
`

// NewSQLiteFixture creates a populated SQLite database file in a temp
// directory and returns its path. The file is writable here so the
// fixture can be seeded; production code only ever opens it read-only.
func NewSQLiteFixture(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open fixture database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(fixtureSchema); err != nil {
		t.Fatalf("seed fixture database: %v", err)
	}

	return path
}

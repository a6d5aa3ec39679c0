package pgsorting

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS sockets (
  id BIGSERIAL PRIMARY KEY,
  socket_id TEXT NOT NULL UNIQUE,
  socket_name TEXT NOT NULL,
  socket_color TEXT NOT NULL DEFAULT '#010101',
  location TEXT NOT NULL DEFAULT '',
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  display_order INT NOT NULL DEFAULT 0,
  supports_source BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS socket_users (
  socket_id BIGINT NOT NULL REFERENCES sockets(id) ON DELETE CASCADE,
  username TEXT NOT NULL,
  PRIMARY KEY (socket_id, username)
)`,
		`
CREATE TABLE IF NOT EXISTS bag_type_categories (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  color TEXT NOT NULL DEFAULT '#808080',
  icon TEXT NOT NULL DEFAULT '',
  display_order INT NOT NULL DEFAULT 0,
  is_active BOOLEAN NOT NULL DEFAULT TRUE
)`,
		`
CREATE TABLE IF NOT EXISTS bag_types (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  code TEXT NOT NULL UNIQUE,
  description TEXT NOT NULL DEFAULT '',
  color TEXT NOT NULL DEFAULT '#808080',
  parameters TEXT[] NOT NULL DEFAULT '{}',
  display_order INT NOT NULL DEFAULT 1 CHECK (display_order BETWEEN 1 AND 1000),
  bag_source TEXT NOT NULL DEFAULT 'IN' CHECK (bag_source IN ('IN', 'OUT')),
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  socket_id BIGINT NOT NULL REFERENCES sockets(id) ON DELETE CASCADE,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_bag_types_socket ON bag_types(socket_id, bag_source, display_order)`,
		`
CREATE TABLE IF NOT EXISTS bag_subtypes (
  id BIGSERIAL PRIMARY KEY,
  bag_type_id BIGINT NOT NULL REFERENCES bag_types(id) ON DELETE CASCADE,
  category_id BIGINT NULL REFERENCES bag_type_categories(id) ON DELETE SET NULL,
  name TEXT NOT NULL,
  code TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  display_order INT NOT NULL DEFAULT 1 CHECK (display_order BETWEEN 1 AND 1000),
  color TEXT NOT NULL DEFAULT '#808080',
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL,
  UNIQUE (bag_type_id, name)
)`,
		`
CREATE TABLE IF NOT EXISTS sorting_persons (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  person_id TEXT NOT NULL UNIQUE,
  person_color TEXT NOT NULL DEFAULT '#000000',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		// bag_type_id is NO ACTION on purpose: a direct bag type delete is blocked while
		// bags reference it, but a socket delete still cascades through bags and types.
		`
CREATE TABLE IF NOT EXISTS bags (
  id BIGSERIAL PRIMARY KEY,
  bag_id TEXT NOT NULL UNIQUE,
  socket_id BIGINT NOT NULL REFERENCES sockets(id) ON DELETE CASCADE,
  person_id BIGINT NULL REFERENCES sorting_persons(id) ON DELETE SET NULL,
  bag_type_id BIGINT NOT NULL REFERENCES bag_types(id),
  bag_subtype_id BIGINT NULL REFERENCES bag_subtypes(id) ON DELETE SET NULL,
  quality_grade TEXT NOT NULL DEFAULT '' CHECK (quality_grade IN ('', 'A', 'B', 'C')),
  weight_kg NUMERIC(5,2) NULL CHECK (weight_kg >= 0),
  item_count INT NOT NULL DEFAULT 0 CHECK (item_count >= 0),
  processed BOOLEAN NOT NULL DEFAULT FALSE,
  extra BOOLEAN NOT NULL DEFAULT FALSE,
  notes TEXT NOT NULL DEFAULT '',
  bag_source TEXT NULL,
  processing_time_seconds BIGINT NULL,
  auto_processed_by_next_bag BOOLEAN NOT NULL DEFAULT FALSE,
  received_at TIMESTAMPTZ NOT NULL,
  processed_at TIMESTAMPTZ NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_bags_pending ON bags(socket_id, bag_source, received_at DESC) WHERE NOT processed`,
		`CREATE INDEX IF NOT EXISTS idx_bags_received_at ON bags(received_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS sorted_bags (
  id BIGSERIAL PRIMARY KEY,
  bag_id BIGINT NOT NULL UNIQUE REFERENCES bags(id) ON DELETE CASCADE,
  destination TEXT NOT NULL CHECK (destination IN ('retail', 'outlet', 'donation', 'recycling', 'disposal')),
  status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'shipped', 'delivered', 'returned')),
  final_quality_check BOOLEAN NOT NULL DEFAULT FALSE,
  packaging_notes TEXT NOT NULL DEFAULT '',
  tracking_number TEXT NOT NULL DEFAULT '',
  shipped_at TIMESTAMPTZ NULL,
  delivered_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_sorted_bags_tracking_number ON sorted_bags(tracking_number) WHERE tracking_number <> ''`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}

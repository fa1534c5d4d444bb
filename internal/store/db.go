package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"novachat/internal/docjson"
)

type documentRow struct {
	Collection string       `gorm:"primaryKey;size:64"`
	Key        string       `gorm:"primaryKey;size:255"`
	Data       docjson.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt  time.Time    `gorm:"not null"`
}

func (documentRow) TableName() string { return "documents" }

// DB is the durable backend over a shared SQL database. Watch fanout is
// in-process: writes made through this adapter notify its own watchers.
// Remote processes observe changes through the primary service's watch
// feed instead.
type DB struct {
	db  *gorm.DB
	hub *hub
}

var _ Adapter = (*DB)(nil)

func NewDB(gdb *gorm.DB, log *slog.Logger) (*DB, error) {
	if err := gdb.AutoMigrate(&documentRow{}); err != nil {
		return nil, err
	}
	d := &DB{db: gdb}
	d.hub = newHub(log, d.snapshots)
	return d, nil
}

func (d *DB) Get(ctx context.Context, collection, key string) (Doc, error) {
	var row documentRow
	err := d.db.WithContext(ctx).
		First(&row, "collection = ? AND key = ?", collection, key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeRow(row)
}

func (d *DB) Create(ctx context.Context, collection, key string, doc Doc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing documentRow
		err := tx.First(&existing, "collection = ? AND key = ?", collection, key).Error
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&documentRow{
			Collection: collection,
			Key:        key,
			Data:       docjson.JSON(data),
			UpdatedAt:  time.Now().UTC(),
		}).Error
	})
	if err != nil {
		// Two concurrent creates can both pass the existence check; the
		// loser's key violation still means the name is taken.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyExists
		}
		return err
	}
	d.hub.broadcast(collection)
	return nil
}

func (d *DB) Update(ctx context.Context, collection, key string, muts ...Mutation) error {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row documentRow
		// Lock the row so concurrent read-modify-writes serialize. The
		// sqlite driver drops the clause; sqlite's single writer covers it.
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "collection = ? AND key = ?", collection, key).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		doc, err := decodeRow(row)
		if err != nil {
			return err
		}
		apply(doc, muts)
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return tx.Model(&documentRow{}).
			Where("collection = ? AND key = ?", collection, key).
			Updates(map[string]any{
				"data":       docjson.JSON(data),
				"updated_at": time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return err
	}
	d.hub.broadcast(collection)
	return nil
}

func (d *DB) Append(ctx context.Context, collection string, doc Doc) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	id := ulid.Make().String()
	err = d.db.WithContext(ctx).Create(&documentRow{
		Collection: collection,
		Key:        id,
		Data:       docjson.JSON(data),
		UpdatedAt:  time.Now().UTC(),
	}).Error
	if err != nil {
		return "", err
	}
	d.hub.broadcast(collection)
	return id, nil
}

func (d *DB) Watch(ctx context.Context, q Query, fn func([]Snapshot)) (CancelFunc, error) {
	return d.hub.watch(ctx, q, fn), nil
}

func (d *DB) snapshots(q Query) ([]Snapshot, error) {
	var rows []documentRow
	tx := d.db.Where("collection = ?", q.Collection)
	if q.Key != "" {
		tx = tx.Where("key = ?", q.Key)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	snaps := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		doc, err := decodeRow(row)
		if err != nil {
			slog.Warn("skipping undecodable document", "collection", row.Collection, "key", row.Key, "error", err)
			continue
		}
		s := Snapshot{ID: row.Key, Data: doc}
		if q.matches(s) {
			snaps = append(snaps, s)
		}
	}
	sortSnapshots(snaps, q)
	return snaps, nil
}

func decodeRow(row documentRow) (Doc, error) {
	var doc Doc
	if err := json.Unmarshal([]byte(row.Data), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

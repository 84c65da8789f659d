// Package database is the persistent document store behind the ledger and
// the quote cache.
//
// Every collection holds whole JSON documents addressed by key. There is no
// partial-field update: callers read a document, mutate a copy and put the
// whole document back, inside Update when several documents must change
// together.
package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stocks-trader/models"
)

// Collection names a set of documents.
type Collection string

const (
	Users        Collection = "users"
	Instruments  Collection = "instruments"
	Transactions Collection = "transactions" // one log document per username
	Meta         Collection = "meta"
)

var (
	// ErrIO marks a storage failure. Operations failing with ErrIO are retried
	// with backoff before the error reaches the caller.
	ErrIO = errors.New("storage failure")
	// ErrInvalidDocument marks a document that failed decoding or validation.
	ErrInvalidDocument = errors.New("invalid document")
)

// Store is a transactional document store.
type Store interface {
	// Get decodes the document into dst. It returns models.ErrNotFound when
	// the key is absent.
	Get(ctx context.Context, c Collection, key string, dst any) error
	// Put validates doc and fully replaces the stored document.
	Put(ctx context.Context, c Collection, key string, doc any) error
	Delete(ctx context.Context, c Collection, key string) error
	// List returns the raw documents of a collection by key.
	List(ctx context.Context, c Collection) (map[string]json.RawMessage, error)
	// Update runs fn in a single transaction. Nothing fn wrote is kept if it
	// returns an error.
	Update(ctx context.Context, fn func(tx Store) error) error
}

// Document is the row backing one stored document.
type Document struct {
	Collection string `gorm:"primaryKey;size:32"`
	Key        string `gorm:"column:doc_key;primaryKey;size:255"`
	Body       string `gorm:"type:text;not null"`
	UpdatedAt  time.Time
}

func (Document) TableName() string {
	return "documents"
}

// GormStore implements Store on a gorm database.
type GormStore struct {
	db    *gorm.DB
	retry RetryPolicy
	inTx  bool
}

// NewGormStore migrates the documents table and returns the store.
func NewGormStore(db *gorm.DB, retry RetryPolicy) (*GormStore, error) {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	return &GormStore{db: db, retry: retry}, nil
}

func (s *GormStore) Get(ctx context.Context, c Collection, key string, dst any) error {
	var doc Document
	err := s.do(ctx, func() error {
		err := s.db.WithContext(ctx).
			Where("collection = ? AND doc_key = ?", string(c), key).
			Take(&doc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%s/%s: %w", c, key, models.ErrNotFound)
		}
		if err != nil {
			return ioError("get", c, key, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return decode(c, key, []byte(doc.Body), dst)
}

func (s *GormStore) Put(ctx context.Context, c Collection, key string, doc any) error {
	body, err := encode(c, key, doc)
	if err != nil {
		return err
	}
	return s.do(ctx, func() error {
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
		}).Create(&Document{Collection: string(c), Key: key, Body: string(body)}).Error
		if err != nil {
			return ioError("put", c, key, err)
		}
		return nil
	})
}

func (s *GormStore) Delete(ctx context.Context, c Collection, key string) error {
	return s.do(ctx, func() error {
		res := s.db.WithContext(ctx).
			Where("collection = ? AND doc_key = ?", string(c), key).
			Delete(&Document{})
		if res.Error != nil {
			return ioError("delete", c, key, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%s/%s: %w", c, key, models.ErrNotFound)
		}
		return nil
	})
}

func (s *GormStore) List(ctx context.Context, c Collection) (map[string]json.RawMessage, error) {
	var docs []Document
	err := s.do(ctx, func() error {
		docs = docs[:0]
		err := s.db.WithContext(ctx).
			Where("collection = ?", string(c)).
			Order("doc_key").
			Find(&docs).Error
		if err != nil {
			return ioError("list", c, "*", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(docs))
	for _, d := range docs {
		out[d.Key] = json.RawMessage(d.Body)
	}
	return out, nil
}

func (s *GormStore) Update(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.retry.run(ctx, func() error {
		var fnErr error
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			fnErr = fn(&GormStore{db: tx, retry: s.retry, inTx: true})
			return fnErr
		})
		if err != nil && fnErr == nil {
			// begin or commit failed
			return fmt.Errorf("%w: transaction: %v", ErrIO, err)
		}
		return err
	})
}

// do retries op outside transactions. Inside a transaction the whole
// transaction is retried instead.
func (s *GormStore) do(ctx context.Context, op func() error) error {
	if s.inTx {
		return op()
	}
	return s.retry.run(ctx, op)
}

func ioError(op string, c Collection, key string, err error) error {
	log.WithError(err).Debugf("store: %s %s/%s failed", op, c, key)
	return fmt.Errorf("%w: %s %s/%s: %v", ErrIO, op, c, key, err)
}

type validator interface {
	Validate() error
}

type keyed interface {
	SetKey(key string)
}

func encode(c Collection, key string, doc any) ([]byte, error) {
	if v, ok := doc.(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %w", ErrInvalidDocument, c, key, err)
		}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrInvalidDocument, c, key, err)
	}
	return body, nil
}

func decode(c Collection, key string, body []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %s/%s: %w", ErrInvalidDocument, c, key, err)
	}
	if k, ok := dst.(keyed); ok {
		k.SetKey(key)
	}
	if v, ok := dst.(validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %s/%s: %w", ErrInvalidDocument, c, key, err)
		}
	}
	return nil
}

// ListDocs decodes every document of a collection.
func ListDocs[T any](ctx context.Context, s Store, c Collection) (map[string]*T, error) {
	raw, err := s.List(ctx, c)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*T, len(raw))
	for key, body := range raw {
		doc := new(T)
		if err := decode(c, key, body, doc); err != nil {
			return nil, err
		}
		out[key] = doc
	}
	return out, nil
}

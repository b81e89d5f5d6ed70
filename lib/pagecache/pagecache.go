// Package pagecache caches fetched archive pages in badger so that
// static listings (fandom indexes, category pages) are not re-fetched
// on every run. Entries expire; expired keys are dropped on read.
package pagecache

import (
	"bytes"
	"encoding/gob"
	"net/url"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when no live entry exists for a URL.
var ErrNotFound = badger.ErrKeyNotFound

type Page struct {
	Contents  []byte
	FetchedAt int64
	ExpiresAt int64
}

type Cache struct {
	db      *badger.DB
	baseUrl *url.URL
	now     func() time.Time
}

func New(db *badger.DB, baseUrl *url.URL) *Cache {
	return &Cache{db: db, baseUrl: baseUrl, now: time.Now}
}

// key normalizes the endpoint against the base URL so equivalent URLs
// (trailing slashes, query order, fragments) share one entry.
func (c *Cache) key(endpoint string) (string, error) {
	full, err := c.baseUrl.Parse(endpoint)
	if err != nil {
		return "", err
	}
	return purell.NormalizeURL(
		full,
		purell.FlagsSafe|
			purell.FlagsUsuallySafeNonGreedy|
			purell.FlagRemoveFragment|
			purell.FlagSortQuery,
	), nil
}

func (c *Cache) Get(endpoint string) (Page, error) {
	key, err := c.key(endpoint)
	if err != nil {
		return Page{}, err
	}

	tx := c.db.NewTransaction(false)
	defer tx.Discard()

	item, err := tx.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return Page{}, ErrNotFound
	}
	if err != nil {
		return Page{}, err
	}
	serialized, err := item.ValueCopy(nil)
	if err != nil {
		return Page{}, err
	}

	var page Page
	if err := gob.NewDecoder(bytes.NewReader(serialized)).Decode(&page); err != nil {
		return Page{}, err
	}

	if c.now().Unix() >= page.ExpiresAt {
		wtx := c.db.NewTransaction(true)
		defer wtx.Commit()
		if err := wtx.Delete([]byte(key)); err != nil {
			return Page{}, ErrNotFound
		}
		return Page{}, ErrNotFound
	}

	return page, nil
}

func (c *Cache) Set(endpoint string, contents []byte, lifetime time.Duration) error {
	key, err := c.key(endpoint)
	if err != nil {
		return err
	}

	now := c.now()
	page := Page{
		Contents:  contents,
		FetchedAt: now.Unix(),
		ExpiresAt: now.Add(lifetime).Unix(),
	}

	serialized := bytes.NewBuffer(nil)
	if err := gob.NewEncoder(serialized).Encode(page); err != nil {
		return err
	}

	tx := c.db.NewTransaction(true)
	defer tx.Commit()
	return tx.Set([]byte(key), serialized.Bytes())
}

package db

import (
	"path"
	"time"

	"github.com/boltdb/bolt"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/pkg/log"
)

var db *bolt.DB

// Open opens the bolt file at filename.
func Open(filename string) (*bolt.DB, error) {
	return bolt.Open(filename, 0600, &bolt.Options{Timeout: 5 * time.Second})
}

func InitDB(confDir string) {
	var err error
	db, err = Open(path.Join(confDir, "bolt.db"))
	if err != nil {
		log.Fatal("open database: %v", err)
	}
}

func DB() *bolt.DB {
	return db
}

func Close() error {
	if db == nil {
		return nil
	}
	return db.Close()
}

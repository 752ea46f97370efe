package database

import (
	"database/sql"
	"embed"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	DB          *sqlx.DB
	DBFile      string
	DBVersion   string
	ReadWriteMu = &sync.RWMutex{}
	DBLogLevel  string
)

// InitDB opens (and creates) the sqlite database file.
func InitDB(file string) error {
	if dir := filepath.Dir(file); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	db, err := sqlx.Connect("sqlite3", "file:"+file+"?_fk=1&_busy_timeout=5000&_cslike=0")
	if err != nil {
		return errors.Wrapf(err, "open database %s", file)
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(5)
	DB = db
	DBFile = file
	return nil
}

// UpgradeDB applies the embedded migrations.
func UpgradeDB() error {
	if DB == nil {
		return errors.New("database not initialized")
	}
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(DB.DB, &sqlite3.Config{})
	if err != nil {
		return errors.Wrap(err, "migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return errors.Wrap(err, "migration")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "an error occurred while syncing the database")
	}
	// m.Close would close the shared connection
	vers, _, _ := m.Version()
	DBVersion = strconv.Itoa(int(vers))
	return nil
}

func Close() error {
	if DB == nil {
		return nil
	}
	err := DB.Close()
	DB = nil
	return err
}

// Backup writes a copy of the database into dir and keeps at most maxbackups
// copies. It returns the file name of the new backup.
func Backup(dir string, maxbackups int) (string, error) {
	if DB == nil {
		return "", errors.New("database not initialized")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	prefix := filepath.Base(DBFile) + "."
	backupPath := filepath.Join(dir, prefix+time.Now().Format("20060102_150405"))
	ReadWriteMu.Lock()
	_, err := DB.Exec(`VACUUM INTO "` + strings.ReplaceAll(backupPath, `"`, `""`) + `"`)
	ReadWriteMu.Unlock()
	if err != nil {
		return "", errors.Wrap(err, "vacuum failed")
	}
	if err := RemoveOldDbBackups(dir, prefix, maxbackups); err != nil {
		logger.Log.Warn("remove old backups: ", err)
	}
	return backupPath, nil
}

// RemoveOldDbBackups keeps the newest max backups.
func RemoveOldDbBackups(dir string, prefix string, max int) error {
	if max <= 0 {
		return nil
	}
	files, err := oldDatabaseFiles(dir, prefix)
	if err != nil {
		return err
	}
	if len(files) <= max {
		return nil
	}
	for _, f := range files[max:] {
		if errRemove := os.Remove(filepath.Join(dir, f.name)); err == nil && errRemove != nil {
			err = errRemove
		}
	}
	return err
}

type backupInfo struct {
	timestamp time.Time
	name      string
}

func oldDatabaseFiles(dir string, prefix string) ([]backupInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "can't read backup directory")
	}
	backupFiles := make([]backupInfo, 0, len(entries))
	for _, f := range entries {
		if f.IsDir() || !strings.HasPrefix(f.Name(), prefix) {
			continue
		}
		if t, err := time.Parse("20060102_150405", f.Name()[len(prefix):]); err == nil {
			backupFiles = append(backupFiles, backupInfo{timestamp: t, name: f.Name()})
		}
	}
	// newest first
	sort.Slice(backupFiles, func(i, j int) bool {
		return backupFiles[i].timestamp.After(backupFiles[j].timestamp)
	})
	return backupFiles, nil
}

type JobHistory struct {
	ID          int64        `db:"id" json:"id"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
	JobType     string       `db:"job_type" json:"job_type"`
	JobCategory string       `db:"job_category" json:"job_category"`
	JobGroup    string       `db:"job_group" json:"job_group"`
	Started     sql.NullTime `db:"started" json:"started"`
	Ended       sql.NullTime `db:"ended" json:"ended"`
	Result      string       `db:"result" json:"result"`
}

// InsertJobHistory records the start of a job.
func InsertJobHistory(jobType string, category string, group string) (int64, error) {
	result, err := InsertArray("job_histories",
		[]string{"job_type", "job_category", "job_group", "started"},
		[]interface{}{jobType, category, group, time.Now()})
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func EndJobHistory(id int64, result string) error {
	_, err := UpdateArray("job_histories",
		[]string{"ended", "result", "updated_at"},
		[]interface{}{time.Now(), result, time.Now()},
		Query{Where: "id = ?", WhereArgs: []interface{}{id}})
	return err
}

func QueryJobHistory(qu Query) ([]JobHistory, error) {
	return queryStructs[JobHistory]("job_histories", qu)
}

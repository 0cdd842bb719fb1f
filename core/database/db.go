package database

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"VKBot/core"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var schema = `
CREATE TABLE IF NOT EXISTS commandalias ( id INTEGER PRIMARY KEY AUTOINCREMENT , pmenabled INTEGER DEFAULT 0, group_id INTEGER, command VARCHAR UNIQUE, help VARCHAR, longhelp VARCHAR, value VARCHAR );
CREATE INDEX IF NOT EXISTS commandalias_command_index ON commandalias (command);
CREATE INDEX IF NOT EXISTS commandalias_group_index ON commandalias (group_id);

CREATE TABLE IF NOT EXISTS commandgroup ( id INTEGER PRIMARY KEY AUTOINCREMENT , parent INTEGER, command VARCHAR UNIQUE, help VARCHAR );
CREATE INDEX IF NOT EXISTS commandgroup_command_index ON commandgroup (command);
CREATE INDEX IF NOT EXISTS commandgroup_parent_index ON commandgroup (parent);
`

var (
	ErrNotOpen  = errors.New("database isn't open")
	ErrExists   = errors.New("already exists")
	ErrNotFound = errors.New("not found")
)

// CommandAlias is a stored reply command.
type CommandAlias struct {
	Id             int
	PMEnabled      bool
	GroupId        *int `db:"group_id"`
	Command, Value string
	Help, Longhelp *string
}

// CommandGroup is a category of stored commands.
type CommandGroup struct {
	Id      int
	Parent  *int
	Command string
	Help    *string
}

var database *sqlx.DB
var mu sync.RWMutex

// InitializeDatabase opens (or creates) the sqlite file at path.
func InitializeDatabase(path string) error {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("create schema: %w", err)
	}
	mu.Lock()
	database = db
	mu.Unlock()
	return nil
}

func IsOpen() bool {
	mu.RLock()
	defer mu.RUnlock()
	return database != nil
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	if database != nil {
		database.Close()
		database = nil
	}
}

// executeAndCommit runs fn in a transaction. Callers hold mu.
func executeAndCommit(fn func(tx *sql.Tx) (sql.Result, error)) (sql.Result, error) {
	if database == nil {
		return nil, ErrNotOpen
	}
	tx, err := database.Begin()
	if err != nil {
		return nil, err
	}
	res, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return res, tx.Commit()
}

func affected(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

func FetchCommandAlias(cmd string) *CommandAlias {
	mu.RLock()
	defer mu.RUnlock()
	if database == nil {
		core.LogError("Database isn't open. Shouldn't happen.")
		return nil
	}
	command := CommandAlias{}
	err := database.Get(&command, "SELECT * FROM commandalias WHERE command=?", cmd)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		core.LogErrorF("Failed to fetch command %s: %s", cmd, err)
		return nil
	}
	core.LogDebugF("Loaded command: %#v", command)
	return &command
}

func FetchCommandGroup(cmd string) *CommandGroup {
	mu.RLock()
	defer mu.RUnlock()
	if database == nil {
		core.LogError("Database isn't open. Shouldn't happen.")
		return nil
	}
	command := CommandGroup{}
	err := database.Get(&command, "SELECT * FROM commandgroup WHERE command=?", cmd)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		core.LogErrorF("Failed to fetch command group %s: %s", cmd, err)
		return nil
	}
	core.LogDebugF("Loaded command group: %#v", command)
	return &command
}

func FetchCommandGroups() []CommandGroup {
	mu.RLock()
	defer mu.RUnlock()
	if database == nil {
		return nil
	}

	var groups []CommandGroup
	err := database.Select(&groups, "SELECT * FROM commandgroup ORDER BY command ASC")
	if err != nil {
		core.LogErrorF("Failed to fetch command groups: %s", err)
		return nil
	}
	return groups
}

func (c *CommandGroup) FetchCommands() []CommandAlias {
	mu.RLock()
	defer mu.RUnlock()
	if database == nil {
		return nil
	}

	var commands []CommandAlias
	err := database.Select(&commands, "SELECT * FROM commandalias WHERE group_id=? ORDER BY command ASC", c.Id)
	if err != nil {
		core.LogErrorF("Failed to fetch commands for command group %s: %s", c.Command, err)
		return nil
	}
	return commands
}

func FetchStandaloneCommands() []CommandAlias {
	mu.RLock()
	defer mu.RUnlock()
	if database == nil {
		return nil
	}

	var commands []CommandAlias
	err := database.Select(&commands, "SELECT * FROM commandalias WHERE group_id IS NULL ORDER BY command ASC")
	if err != nil {
		core.LogErrorF("Failed to fetch standalone commands: %s", err)
		return nil
	}
	return commands
}

// AddCommandAlias stores a new reply command. Names used by a category are
// rejected too.
func AddCommandAlias(cmd, value string) error {
	mu.Lock()
	defer mu.Unlock()
	_, err := executeAndCommit(func(tx *sql.Tx) (sql.Result, error) {
		var n int
		if err := tx.QueryRow(`SELECT (SELECT COUNT(*) FROM commandalias WHERE command=?) + (SELECT COUNT(*) FROM commandgroup WHERE command=?)`, cmd, cmd).Scan(&n); err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, fmt.Errorf("command %s: %w", cmd, ErrExists)
		}
		return tx.Exec("INSERT INTO commandalias (command, value) VALUES (?, ?)", cmd, value)
	})
	return err
}

func EditCommandAlias(cmd, value string) error {
	mu.Lock()
	defer mu.Unlock()
	res, err := executeAndCommit(func(tx *sql.Tx) (sql.Result, error) {
		return tx.Exec("UPDATE commandalias SET value=? WHERE command=?", value, cmd)
	})
	if err != nil {
		return err
	}
	if !affected(res) {
		return fmt.Errorf("command %s: %w", cmd, ErrNotFound)
	}
	return nil
}

func RemoveCommandAlias(cmd string) error {
	mu.Lock()
	defer mu.Unlock()
	res, err := executeAndCommit(func(tx *sql.Tx) (sql.Result, error) {
		return tx.Exec("DELETE FROM commandalias WHERE command=?", cmd)
	})
	if err != nil {
		return err
	}
	if !affected(res) {
		return fmt.Errorf("command %s: %w", cmd, ErrNotFound)
	}
	return nil
}

// SetHelp sets the help text of a command or, failing that, a category. An
// empty text clears it.
func SetHelp(name, help string) error {
	var text *string
	if help != "" {
		text = &help
	}

	mu.Lock()
	defer mu.Unlock()
	res, err := executeAndCommit(func(tx *sql.Tx) (sql.Result, error) {
		res, err := tx.Exec("UPDATE commandalias SET help=? WHERE command=?", text, name)
		if err != nil || affected(res) {
			return res, err
		}
		return tx.Exec("UPDATE commandgroup SET help=? WHERE command=?", text, name)
	})
	if err != nil {
		return err
	}
	if !affected(res) {
		return fmt.Errorf("command or category %s: %w", name, ErrNotFound)
	}
	return nil
}

// AddToGroup moves cmd into group, creating the group when needed.
func AddToGroup(group, cmd string) error {
	mu.Lock()
	defer mu.Unlock()
	_, err := executeAndCommit(func(tx *sql.Tx) (sql.Result, error) {
		var clash int
		if err := tx.QueryRow("SELECT COUNT(*) FROM commandalias WHERE command=?", group).Scan(&clash); err != nil {
			return nil, err
		}
		if clash > 0 {
			return nil, fmt.Errorf("category %s clashes with a command: %w", group, ErrExists)
		}
		if _, err := tx.Exec("INSERT OR IGNORE INTO commandgroup (command) VALUES (?)", group); err != nil {
			return nil, err
		}
		res, err := tx.Exec("UPDATE commandalias SET group_id=(SELECT id FROM commandgroup WHERE command=?) WHERE command=?", group, cmd)
		if err != nil {
			return nil, err
		}
		if !affected(res) {
			return nil, fmt.Errorf("command %s: %w", cmd, ErrNotFound)
		}
		return res, nil
	})
	return err
}

func RemoveFromGroup(group, cmd string) error {
	mu.Lock()
	defer mu.Unlock()
	res, err := executeAndCommit(func(tx *sql.Tx) (sql.Result, error) {
		return tx.Exec("UPDATE commandalias SET group_id=NULL WHERE command=? AND group_id=(SELECT id FROM commandgroup WHERE command=?)", cmd, group)
	})
	if err != nil {
		return err
	}
	if !affected(res) {
		return fmt.Errorf("command %s in category %s: %w", cmd, group, ErrNotFound)
	}
	return nil
}

// DeleteGroup removes a category. Its commands become uncategorised.
func DeleteGroup(group string) error {
	mu.Lock()
	defer mu.Unlock()
	res, err := executeAndCommit(func(tx *sql.Tx) (sql.Result, error) {
		if _, err := tx.Exec("UPDATE commandalias SET group_id=NULL WHERE group_id=(SELECT id FROM commandgroup WHERE command=?)", group); err != nil {
			return nil, err
		}
		return tx.Exec("DELETE FROM commandgroup WHERE command=?", group)
	})
	if err != nil {
		return err
	}
	if !affected(res) {
		return fmt.Errorf("category %s: %w", group, ErrNotFound)
	}
	return nil
}

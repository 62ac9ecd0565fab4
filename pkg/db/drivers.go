package db

import (
	// Drivers shipped with every build, for instance.dsn with a custom
	// catalogue. teradatasql is linked by the distribution build and
	// detected through Available.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

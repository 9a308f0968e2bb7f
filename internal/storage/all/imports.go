// Package all registers every built-in storage backend with the storage
// factory. Import it for side effects from the binary's wiring layer:
//
//	import _ "github.com/RobertDonnan/ufo-notebook/internal/storage/all"
//
// Kinds made available: "sqlite", "postgres", "mssql", "mysql".
package all

import (
	_ "github.com/RobertDonnan/ufo-notebook/internal/storage/mssql"
	_ "github.com/RobertDonnan/ufo-notebook/internal/storage/mysql"
	_ "github.com/RobertDonnan/ufo-notebook/internal/storage/postgres"
	_ "github.com/RobertDonnan/ufo-notebook/internal/storage/sqlite"
)

package migrate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	script := `create table a (id int);
insert into a values (1);
insert into a (name) values ('semi;colon');`

	stmts := splitStatements(script)
	if len(stmts) != 3 {
		t.Fatalf("got %d statements: %q", len(stmts), stmts)
	}
	if got := stmts[2]; got != "\ninsert into a (name) values ('semi;colon');" {
		t.Fatalf("quoted semicolon split: %q", got)
	}
}

func TestListSQLFilesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.up.sql", "0001_a.up.sql", "0001_a.down.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := listSQLFiles(dir, ".up.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].name != "0001_a.up.sql" || files[1].name != "0002_b.up.sql" {
		t.Fatalf("files = %+v", files)
	}
}

func TestListSQLFilesMissingDir(t *testing.T) {
	files, err := listSQLFiles(filepath.Join(t.TempDir(), "nope"), ".sql")
	if err != nil {
		t.Fatalf("missing dir: %v", err)
	}
	if files != nil {
		t.Fatalf("files = %+v", files)
	}
}

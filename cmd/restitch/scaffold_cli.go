package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/unkn0wn-root/restitch/internal/errdef"
	"github.com/unkn0wn-root/restitch/internal/scaffold"
	"github.com/unkn0wn-root/restitch/internal/workbook"
)

// runScaffold writes a generated test project from a workbook file. The
// output is the same shape the importer reads back, so a scaffold followed
// by an import round-trips.
func runScaffold(workbookPath, dest string) error {
	data, err := os.ReadFile(workbookPath)
	if err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "read workbook %s", workbookPath)
	}

	var wb workbook.Workbook
	if err := json.Unmarshal(data, &wb); err != nil {
		return errdef.Wrap(errdef.CodeParse, err, "decode workbook %s", workbookPath)
	}

	if dest == "" {
		dest = defaultScaffoldDest(workbookPath)
	}

	opts := scaffold.Options{
		OverwriteExisting: true,
		HeaderComment:     fmt.Sprintf("Generated by restitch %s", version),
	}
	if err := scaffold.WriteProject(context.Background(), &wb, dest, opts); err != nil {
		return err
	}

	requests, groups := workbook.CountEntities(wb.Requests)
	fmt.Fprintf(os.Stderr, "scaffolded %d requests, %d groups into %s\n", requests, groups, dest)
	return nil
}

func defaultScaffoldDest(workbookPath string) string {
	base := filepath.Base(workbookPath)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return filepath.Join(filepath.Dir(workbookPath), base+"-project")
}

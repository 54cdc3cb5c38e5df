package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/watchsync/internal/reconcile"
)

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	headers := []string{"USER", "ROLE"}
	rows := [][]string{
		{"Owner", "owner"},
		{"Alexandra", "shared"},
	}

	printTable(&buf, headers, rows)

	assert.Equal(t, "USER       ROLE\nOwner      owner\nAlexandra  shared\n", buf.String())
}

func TestPrintTable_Empty(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"SERVER", "OWNER"}, nil)

	assert.Equal(t, "SERVER  OWNER\n", buf.String())
}

func previewReport() *reconcile.Report {
	p := reconcile.NewPreviewReport([]string{"Owner", "Alice", "Bob"})
	p.Record("Alice", reconcile.ActionAdd, &reconcile.Entry{ID: 2, Title: "The Matrix"})
	p.Record("Alice", reconcile.ActionAdd, &reconcile.Entry{ID: 1, Title: "Heat"})
	p.Record("Bob", reconcile.ActionRemove, &reconcile.Entry{ID: 3, Title: "Alien"})

	return &reconcile.Report{
		RunID:    "run-1",
		DryRun:   true,
		Duration: 1500 * time.Millisecond,
		Servers:  2,
		Users:    3,
		Entries:  3,
		Added:    2,
		Removed:  1,
		Preview:  p,
	}
}

func TestPrintSyncText_DryRun(t *testing.T) {
	var buf bytes.Buffer

	printSyncText(&buf, previewReport())
	out := buf.String()

	assert.Contains(t, out, "--- DRY RUN SUMMARY ---")
	assert.Contains(t, out, "User: Alice\n  to tag as watched (2):\n    - Heat\n    - The Matrix\n")
	assert.Contains(t, out, "User: Bob\n  to untag (1):\n    - Alien\n")
	assert.NotContains(t, out, "User: Owner")
	assert.Contains(t, out, "tags to add")
	assert.Contains(t, out, "in 1.5s")
}

func TestPrintSyncText_NoChanges(t *testing.T) {
	var buf bytes.Buffer

	r := &reconcile.Report{DryRun: true, Preview: reconcile.NewPreviewReport([]string{"Owner"})}
	printSyncText(&buf, r)

	assert.Contains(t, buf.String(), "No changes.")
}

func TestPrintSyncText_Failures(t *testing.T) {
	var buf bytes.Buffer

	r := &reconcile.Report{
		Added:  1,
		Failed: 1,
		Errors: []error{errors.New("Heat for Alice: saving \"Heat\": boom")},
	}
	printSyncText(&buf, r)
	out := buf.String()

	assert.Contains(t, out, "tags added")
	assert.NotContains(t, out, "DRY RUN")
	assert.Contains(t, out, "Failures:\n  - Heat for Alice")
}

func TestPrintSyncJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, printSyncJSON(&buf, previewReport()))

	var got syncOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, "run-1", got.RunID)
	assert.True(t, got.DryRun)
	assert.Equal(t, int64(1500), got.DurationMS)
	assert.Equal(t, []reconcile.UserPreview{
		{User: "Alice", Add: []string{"Heat", "The Matrix"}, Remove: []string{}},
		{User: "Bob", Add: []string{}, Remove: []string{"Alien"}},
	}, got.Preview)
}

func TestPrintSyncJSON_OmitsEmptyPreview(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, printSyncJSON(&buf, &reconcile.Report{RunID: "r"}))

	assert.NotContains(t, buf.String(), "preview")
	assert.NotContains(t, buf.String(), "errors")
}

// stubServer is a MediaServer with only identity.
type stubServer struct {
	reconcile.MediaServer
	name, machineID string
}

func (s stubServer) Name() string      { return s.name }
func (s stubServer) MachineID() string { return s.machineID }

func testDiscovery() *reconcile.Discovery {
	return &reconcile.Discovery{
		Servers: []reconcile.MediaServer{
			stubServer{name: "Den", machineID: "m-den"},
			stubServer{name: "Cabin", machineID: "m-cabin"},
		},
		Users:  reconcile.Users{Owner: "Owner", Names: []string{"Owner", "Alice", "Parent"}},
		Owners: map[string]string{"m-den": "Owner", "m-cabin": "Parent"},
	}
}

func TestPrintUsersText(t *testing.T) {
	var buf bytes.Buffer

	printUsersText(&buf, testDiscovery())
	out := buf.String()

	assert.Contains(t, out, "Den     Owner\n")
	assert.Contains(t, out, "Cabin   Parent\n")
	assert.Contains(t, out, "Owner   owner\n")
	assert.Contains(t, out, "Alice   shared\n")
	assert.Contains(t, out, "Parent  owner\n")
}

func TestPrintUsersJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, printUsersJSON(&buf, testDiscovery()))

	var got usersOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, "Owner", got.Owner)
	assert.Equal(t, []string{"Owner", "Alice", "Parent"}, got.Users)
	assert.Equal(t, serverOutput{Name: "Cabin", MachineID: "m-cabin", Owner: "Parent"}, got.Servers[1])
}

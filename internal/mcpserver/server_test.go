package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/localnative/localnative/internal/command"
	"github.com/localnative/localnative/internal/models"
	"github.com/localnative/localnative/internal/notes"
	"github.com/localnative/localnative/internal/store"
	"github.com/localnative/localnative/internal/testutil"
)

func testServer(t *testing.T) (*Server, *notes.Service) {
	t.Helper()
	svc := testutil.TestNotes(t)
	return New(command.NewEngine(svc)), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process "call tool" helper, so handlers are called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "get_note":
		result, err = srv.getNote(ctx, req)
	case "insert_note":
		result, err = srv.insertNote(ctx, req)
	case "insert_image_note":
		result, err = srv.insertImageNote(ctx, req)
	case "delete_note":
		result, err = srv.deleteNote(ctx, req)
	case "list_tags":
		result, err = srv.listTags(ctx, req)
	case "timeline":
		result, err = srv.timeline(ctx, req)
	case "sync_via_attach":
		result, err = srv.syncViaAttach(ctx, req)
	case "run_command":
		result, err = srv.runCommand(ctx, req)
	case "get_command_reference":
		result, err = srv.getCommandReference(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decodeResult(t *testing.T, r *mcp.CallToolResult) models.QueryResult {
	t.Helper()
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	var res models.QueryResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return res
}

func TestInsertAndGetNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "insert_note", map[string]interface{}{
		"title": "Go Blog",
		"url":   "https://go.dev/blog",
		"tags":  "go, lang go",
	})
	if r.IsError {
		t.Fatalf("insert: %s", resultText(r))
	}
	var created models.Note
	if err := json.Unmarshal([]byte(resultText(r)), &created); err != nil {
		t.Fatal(err)
	}
	if created.Tags != "go,lang" {
		t.Errorf("tags = %q, want go,lang", created.Tags)
	}

	r = callTool(t, srv, "get_note", map[string]interface{}{"uuid4": created.UUID4})
	var got models.Note
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatal(err)
	}
	if got.RowID != created.RowID || got.Title != "Go Blog" {
		t.Errorf("get = %+v", got)
	}
}

func TestInsertNoteRequiresTitle(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "insert_note", map[string]interface{}{"url": "https://x"})
	if !r.IsError {
		t.Error("expected error without title")
	}
}

func TestGetNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_note", map[string]interface{}{"uuid4": "nope"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestSearchNotes(t *testing.T) {
	srv, svc := testServer(t)
	testutil.SeedNotes(t, svc, "alpha", "beta", "alphabet")

	res := decodeResult(t, callTool(t, srv, "search_notes", map[string]interface{}{"query": "alpha"}))
	if res.Count != 2 || len(res.Notes) != 2 {
		t.Errorf("count = %d notes = %d, want 2", res.Count, len(res.Notes))
	}

	res = decodeResult(t, callTool(t, srv, "search_notes", map[string]interface{}{"limit": float64(1)}))
	if res.Count != 3 || len(res.Notes) != 1 {
		t.Errorf("count = %d notes = %d, want 3/1", res.Count, len(res.Notes))
	}
}

func TestDeleteNote(t *testing.T) {
	srv, svc := testServer(t)
	testutil.SeedNotes(t, svc, "gone")
	last, _ := svc.LastInsert()

	r := callTool(t, srv, "delete_note", map[string]interface{}{"rowid": float64(last.RowID)})
	if r.IsError {
		t.Fatalf("delete: %s", resultText(r))
	}
	n, err := svc.CountAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("count after delete = %d", n)
	}

	r = callTool(t, srv, "delete_note", map[string]interface{}{"rowid": float64(last.RowID)})
	if r.IsError {
		t.Errorf("second delete should succeed: %s", resultText(r))
	}
}

func TestListTagsAndTimeline(t *testing.T) {
	srv, svc := testServer(t)
	ctx := context.Background()
	for _, tags := range []string{"go,db", "go", "Go web"} {
		if _, err := svc.Insert(ctx, models.Note{Title: "t", URL: "u", Tags: tags}); err != nil {
			t.Fatal(err)
		}
	}

	r := callTool(t, srv, "list_tags", map[string]interface{}{})
	var tags []models.KV
	if err := json.Unmarshal([]byte(resultText(r)), &tags); err != nil {
		t.Fatal(err)
	}
	if len(tags) == 0 || tags[0].K != "go" || tags[0].V != 3 {
		t.Errorf("tags = %+v, want go:3 first", tags)
	}

	r = callTool(t, srv, "timeline", map[string]interface{}{})
	var days []models.KV
	if err := json.Unmarshal([]byte(resultText(r)), &days); err != nil {
		t.Fatal(err)
	}
	if len(days) != 1 || days[0].V != 3 {
		t.Errorf("days = %+v", days)
	}
}

func TestInsertImageNote_DataURI(t *testing.T) {
	srv, svc := testServer(t)
	png := append(append([]byte{}, pngMagic...), 0, 0, 0, 13)

	r := callTool(t, srv, "insert_image_note", map[string]interface{}{
		"title": "shot",
		"image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
	if r.IsError {
		t.Fatalf("insert image: %s", resultText(r))
	}
	last, ok := svc.LastInsert()
	if !ok {
		t.Fatal("no last insert")
	}
	n, err := svc.GetByUUID4(context.Background(), last.UUID4)
	if err != nil {
		t.Fatal(err)
	}
	if string(n.Annotations) != string(png) {
		t.Errorf("annotations = %x, want %x", n.Annotations, png)
	}
}

func TestInsertImageNote_Rejects(t *testing.T) {
	srv, _ := testServer(t)
	cases := map[string]string{
		"not png":     "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("GIF89a....")),
		"jpeg mime":   "data:image/jpeg;base64,AAAA",
		"no base64":   "data:image/png,raw",
		"loopback":    "http://127.0.0.1/shot.png",
		"file scheme": "file:///etc/passwd",
	}
	for name, image := range cases {
		t.Run(name, func(t *testing.T) {
			r := callTool(t, srv, "insert_image_note", map[string]interface{}{"title": "x", "image": image})
			if !r.IsError {
				t.Errorf("expected error for %s", image)
			}
		})
	}
}

func TestSyncViaAttach(t *testing.T) {
	srv, svc := testServer(t)
	testutil.SeedNotes(t, svc, "local")

	path := filepath.Join(t.TempDir(), store.DefaultFileName)
	other, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	testutil.SeedNotes(t, notes.New(other), "remote")
	if err := other.Close(); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "sync_via_attach", map[string]interface{}{"uri": path})
	if r.IsError {
		t.Fatalf("sync: %s", resultText(r))
	}
	var stats notes.AttachStats
	if err := json.Unmarshal([]byte(resultText(r)), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Pulled != 1 || stats.Pushed != 1 {
		t.Errorf("stats = %+v, want 1/1", stats)
	}

	r = callTool(t, srv, "sync_via_attach", map[string]interface{}{"uri": filepath.Join(t.TempDir(), "missing.sqlite3")})
	if !r.IsError {
		t.Error("expected error for missing file")
	}
}

func TestRunCommand(t *testing.T) {
	srv, svc := testServer(t)
	testutil.SeedNotes(t, svc, "one", "two")

	res := decodeResult(t, callTool(t, srv, "run_command", map[string]interface{}{
		"command": `{"action":"select","limit":10,"offset":0}`,
	}))
	if res.Count != 2 {
		t.Errorf("count = %d, want 2", res.Count)
	}

	r := callTool(t, srv, "run_command", map[string]interface{}{"command": `{"action":"nope"}`})
	if !r.IsError || resultText(r) != "cmd no match" {
		t.Errorf("unknown action = %q (error=%v)", resultText(r), r.IsError)
	}
}

func TestCommandReference(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_command_reference", nil))
	if !strings.Contains(text, "sync-via-attach") {
		t.Error("reference does not list sync-via-attach")
	}

	contents, err := srv.readReferenceResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != referenceURI {
		t.Errorf("resource = %+v", contents[0])
	}
}

func TestMCPServerExposed(t *testing.T) {
	srv, _ := testServer(t)
	if srv.MCPServer() == nil {
		t.Fatal("nil MCP server")
	}
	if _, err := os.Stat(srv.notes.Store().Path()); err != nil {
		t.Errorf("store file: %v", err)
	}
}

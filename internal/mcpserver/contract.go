package mcpserver

// CommandReference describes the command envelope accepted by the
// run_command tool, the native-messaging host and POST /api/cmd.
const CommandReference = `# Local Native Command Reference

Every command is a JSON object with an ` + "`" + `action` + "`" + ` field.
Listing commands answer with a QueryResult:

` + "```" + `json
{"count": 1, "notes": [{"rowid": 1, "uuid4": "...", "title": "...", "url": "...",
  "tags": "a,b", "description": "...", "comments": "...", "annotations": "<hex>",
  "created_at": "2024-06-15T08:00:00.000000000Z", "is_public": false}],
 "days": [{"k": "2024-06-15", "v": 1}], "tags": [{"k": "a", "v": 1}]}
` + "```" + `

## Actions

| action | fields |
|---|---|
| insert | title, url, tags, description, comments, annotations, is_public, limit, offset |
| insert-image | same as insert; annotations is a data:image/png;base64 URL |
| delete | rowid, query, limit, offset |
| select | limit, offset |
| search | query, limit, offset |
| filter | query, from, to, limit, offset (dates are YYYY-MM-DD) |
| sync-via-attach | uri (path of another localnative.sqlite3) |
| upgrade | none |
| server / client-sync / client-stop-server | addr (host:port) |

## Rules

1. **Tags** are separated by commas, full-width commas or whitespace. They are
   stored deduplicated in first-seen order joined with ",".
2. **Search** splits the query on whitespace. Every term must match one of
   title, url, tags or description (case-insensitive substring).
3. **Filter** keeps notes whose created_at day is within [from, to]. The days
   histogram ignores the range so the timeline stays complete.
4. **Errors** come back as {"error": "...", "kind": "..."}. Unknown actions
   answer {"error": "cmd no match"}.
`

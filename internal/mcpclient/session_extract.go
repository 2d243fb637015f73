package mcpclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// extractSessionID applies the ordered extraction rule: response header,
// then result.sessionId, then result.serverInfo.sessionId, then a
// synthesized failsafe ID. The first match wins.
func extractSessionID(header http.Header, result json.RawMessage) (id string, source sessionSource) {
	if h := header.Get("Mcp-Session-Id"); h != "" {
		return h, sourceHeader
	}

	if len(result) > 0 {
		var parsed initializeResult
		if err := json.Unmarshal(result, &parsed); err == nil {
			if parsed.SessionID != "" {
				return parsed.SessionID, sourceBody
			}
			if parsed.ServerInfo.SessionID != "" {
				return parsed.ServerInfo.SessionID, sourceBody
			}
		}
	}

	return failsafeSessionID(), sourceFailsafe
}

func failsafeSessionID() string {
	return "session_" + strconv.FormatInt(nowFunc().UnixMilli(), 10)
}

// nowFunc is overridden in tests for deterministic failsafe IDs.
var nowFunc = time.Now

// webcrawlSessionID formats a session ID preferred by webcrawl-variant
// servers.
func webcrawlSessionID(uuidFn func() string) string {
	return fmt.Sprintf("webcrawl-%s", uuidFn())
}

package bot

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	actionJoin   = "join"
	actionCheck  = "check"
	actionSpeech = "speech"
)

func callbackData(action string, activityID int64) string {
	return fmt.Sprintf("%s:%d", action, activityID)
}

// ParseCallbackData splits "action:id" callback data.
func ParseCallbackData(data string) (string, int64, error) {
	action, idStr, ok := strings.Cut(data, ":")
	if !ok || action == "" {
		return "", 0, fmt.Errorf("malformed callback data %q", data)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("invalid activity ID in %q", data)
	}
	return action, id, nil
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("activity ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid activity ID %q", s)
	}
	return id, nil
}

func startLink(username string, activityID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", username, activityID)
}

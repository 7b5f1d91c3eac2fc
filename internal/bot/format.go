package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"lottery_bot/internal/model"
	"lottery_bot/internal/validator"
)

const timeFormat = "2006-01-02 15:04 UTC"

// FormatStart formats the announcement sent when an activity opens.
func FormatStart(a *model.Activity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", a.Name)
	if len(a.Prizes) > 0 {
		b.WriteString("\nPrizes:\n")
		for i, p := range a.Prizes {
			fmt.Fprintf(&b, "%d. %s x%d\n", i+1, p.WinningContent(), p.Count)
		}
	}
	if len(a.Conditions) > 0 {
		b.WriteString("\nConditions:\n")
		for _, c := range a.Conditions {
			fmt.Fprintf(&b, "- %s\n", conditionLabel(c))
		}
	}
	fmt.Fprintf(&b, "\nDraw: %s", a.EndTime.UTC().Format(timeFormat))
	return b.String()
}

// FormatEnd formats the results announcement. winners are listed in the given order.
func FormatEnd(a *model.Activity, winners []model.ActivityUser) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has ended\n", a.Name)
	if len(winners) == 0 {
		b.WriteString("\nNo winners this time.")
		return b.String()
	}
	b.WriteString("\nWinners:\n")
	for _, w := range winners {
		fmt.Fprintf(&b, "%s: %s\n", w.DisplayName(), w.WinningContent)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatActivityList formats activities for the admin listing.
func FormatActivityList(activities []model.Activity) string {
	if len(activities) == 0 {
		return "No pending or active lotteries."
	}
	var b strings.Builder
	b.WriteString("Lotteries:\n")
	for _, a := range activities {
		fmt.Fprintf(&b, "\n#%d %s [%s]\n", a.ID, a.Name, a.Status)
		fmt.Fprintf(&b, "   %s - %s, %d participants\n",
			a.StartTime.UTC().Format(timeFormat), a.EndTime.UTC().Format(timeFormat), len(a.Users))
	}
	return b.String()
}

// FormatEvaluation formats a participant's condition status and the buttons to fix unmet ones.
func FormatEvaluation(a *model.Activity, res validator.Result) (string, *tgbotapi.InlineKeyboardMarkup) {
	if res.AllPassed {
		return fmt.Sprintf("You are in the draw for \"%s\". Good luck!", a.Name), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You joined \"%s\", but some conditions are not met yet:\n", a.Name)
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range res.Unmet() {
		fmt.Fprintf(&b, "- %s\n", conditionLabel(c))
		if btn, ok := conditionButton(a.ID, c); ok {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn))
		}
	}
	b.WriteString("\nComplete them and tap Check again.")
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Check again", callbackData(actionCheck, a.ID)),
	))
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return b.String(), &kb
}

// FormatSpeechCounts formats per-chat message counts for a callback alert.
func FormatSpeechCounts(counts []validator.ChatCount, threshold int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Messages needed per chat: %d\n", threshold)
	for _, c := range counts {
		mark := "missing"
		if c.Count >= threshold {
			mark = "ok"
		}
		fmt.Fprintf(&b, "%d: %d/%d %s\n", c.ChatID, c.Count, threshold, mark)
	}
	return strings.TrimRight(b.String(), "\n")
}

func conditionLabel(c model.Condition) string {
	if c.Name != "" {
		return c.Name
	}
	if c.ButtonName != "" {
		return c.ButtonName
	}
	switch c.Kind {
	case model.ConditionJoinGroup:
		return "Join the group"
	case model.ConditionJoinChannel:
		return "Join the channel"
	case model.ConditionFollowBot:
		return "Start the bot"
	case model.ConditionSpeechCount:
		return fmt.Sprintf("Send at least %s messages", c.Link)
	default:
		return string(c.Kind)
	}
}

func conditionButton(activityID int64, c model.Condition) (tgbotapi.InlineKeyboardButton, bool) {
	label := c.ButtonName
	if label == "" {
		label = conditionLabel(c)
	}
	if c.Kind == model.ConditionSpeechCount {
		return tgbotapi.NewInlineKeyboardButtonData(label, callbackData(actionSpeech, activityID)), true
	}
	if strings.HasPrefix(c.Link, "https://") || strings.HasPrefix(c.Link, "http://") {
		return tgbotapi.NewInlineKeyboardButtonURL(label, c.Link), true
	}
	return tgbotapi.InlineKeyboardButton{}, false
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"collalearn/internal/models"
	"collalearn/internal/settings"
)

func (r *Router) cmdAdmin(ctx context.Context, msg Message, group *models.Group) []Reply {
	isAdmin, err := r.checker.IsGroupAdmin(ctx, msg.Chat.ID, msg.From.ID)
	if err != nil {
		log.Printf("admin check in group %d: %v", msg.Chat.ID, err)
		return []Reply{textReply(msg.Chat.ID, msgInternalError)}
	}
	if !isAdmin {
		return []Reply{textReply(msg.Chat.ID, msgNotAllowed)}
	}
	return []Reply{adminPanel(msg.Chat.ID)}
}

func adminPanel(chatID int64) Reply {
	return Reply{
		ChatID: chatID,
		Text:   "Admin panel",
		Buttons: [][]Button{
			{{Label: "Group Settings", Data: "admin:settings"}},
			{{Label: "AI Controls", Data: "admin:ai"}},
			{{Label: "Statistics", Data: "admin:stats"}},
			{{Label: "User Management", Data: "admin:users"}},
			{{Label: "Close", Data: "admin:close"}},
		},
	}
}

func (r *Router) cbAdmin(ctx context.Context, cb Callback, group *models.Group, rest string) []Reply {
	isAdmin, err := r.checker.IsGroupAdmin(ctx, cb.ChatID, cb.From.ID)
	if err != nil {
		log.Printf("admin check in group %d: %v", cb.ChatID, err)
		return []Reply{textReply(cb.ChatID, msgInternalError)}
	}
	if !isAdmin {
		return []Reply{textReply(cb.ChatID, msgNotAllowed)}
	}

	action, arg, _ := strings.Cut(rest, ":")
	switch action {
	case "back":
		return []Reply{adminPanel(cb.ChatID)}
	case "close":
		return []Reply{textReply(cb.ChatID, "Closed.")}
	case "settings":
		return []Reply{settingsMenu(cb.ChatID, group.Settings)}
	case "ai":
		return []Reply{aiMenu(cb.ChatID, group.Settings)}
	case "toggle":
		return r.cbToggleSetting(ctx, cb, group, arg)
	case "max_results":
		return r.cbMaxResults(ctx, cb, group, arg)
	case "stats":
		return r.cbGroupStats(ctx, cb, group)
	case "users":
		return []Reply{{
			ChatID: cb.ChatID,
			Text:   "User management",
			Buttons: [][]Button{
				{{Label: "Top Contributors", Data: "admin:top_users"}},
				{{Label: "Blocked Users", Data: "admin:blocked_users"}},
				{{Label: "Back", Data: "admin:back"}},
			},
		}}
	case "top_users":
		return r.cbTopUsers(ctx, cb)
	case "blocked_users":
		return r.cbBlockedUsers(cb, group)
	case "block":
		return r.cbBlock(ctx, cb, arg, true)
	case "unblock":
		return r.cbBlock(ctx, cb, arg, false)
	default:
		return nil
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func settingsMenu(chatID int64, s models.GroupSettings) Reply {
	return Reply{
		ChatID: chatID,
		Text:   "Group settings",
		Buttons: [][]Button{
			{{Label: fmt.Sprintf("AI features: %s", onOff(s.AIEnabled)), Data: "admin:toggle:ai_enabled"}},
			{{Label: fmt.Sprintf("AI auto-tag: %s", onOff(s.AutoTagEnabled)), Data: "admin:toggle:auto_tag_enabled"}},
			{{Label: fmt.Sprintf("Admin-only indexing: %s", onOff(s.AdminOnlyIndexing)), Data: "admin:toggle:admin_only_indexing"}},
			{{Label: fmt.Sprintf("Max search results: %d", s.MaxSearchResults), Data: fmt.Sprintf("admin:max_results:%d", nextMaxResults(s.MaxSearchResults))}},
			{{Label: "Back", Data: "admin:back"}},
		},
	}
}

// nextMaxResults cycles through the preset result limits.
func nextMaxResults(current int) int {
	presets := []int{5, 10, 20, 50}
	for _, p := range presets {
		if p > current {
			return p
		}
	}
	return presets[0]
}

func aiMenu(chatID int64, s models.GroupSettings) Reply {
	return Reply{
		ChatID: chatID,
		Text:   "AI controls",
		Buttons: [][]Button{
			{{Label: fmt.Sprintf("Summaries: %s", onOff(s.SummarizationEnabled)), Data: "admin:toggle:summarization_enabled"}},
			{{Label: fmt.Sprintf("Explanations: %s", onOff(s.ExplanationEnabled)), Data: "admin:toggle:explanation_enabled"}},
			{{Label: fmt.Sprintf("Quizzes: %s", onOff(s.QuizEnabled)), Data: "admin:toggle:quiz_enabled"}},
			{{Label: "Back", Data: "admin:back"}},
		},
	}
}

func (r *Router) cbToggleSetting(ctx context.Context, cb Callback, group *models.Group, field string) []Reply {
	s := group.Settings
	switch field {
	case "ai_enabled":
		s.AIEnabled = !s.AIEnabled
	case "summarization_enabled":
		s.SummarizationEnabled = !s.SummarizationEnabled
	case "explanation_enabled":
		s.ExplanationEnabled = !s.ExplanationEnabled
	case "quiz_enabled":
		s.QuizEnabled = !s.QuizEnabled
	case "auto_tag_enabled":
		s.AutoTagEnabled = !s.AutoTagEnabled
	case "admin_only_indexing":
		s.AdminOnlyIndexing = !s.AdminOnlyIndexing
	default:
		return nil
	}
	if err := r.groups.UpdateSettings(ctx, cb.ChatID, s); err != nil {
		log.Printf("toggle %s in group %d: %v", field, cb.ChatID, err)
		return []Reply{textReply(cb.ChatID, msgInternalError)}
	}
	switch field {
	case "summarization_enabled", "explanation_enabled", "quiz_enabled":
		return []Reply{aiMenu(cb.ChatID, s)}
	default:
		return []Reply{settingsMenu(cb.ChatID, s)}
	}
}

func (r *Router) cbMaxResults(ctx context.Context, cb Callback, group *models.Group, arg string) []Reply {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > r.cfg.Limits.MaxSearchResultsCap {
		return []Reply{textReply(cb.ChatID,
			fmt.Sprintf("Max search results must be between 1 and %d.", r.cfg.Limits.MaxSearchResultsCap))}
	}
	s := group.Settings
	s.MaxSearchResults = n
	if err := r.groups.UpdateSettings(ctx, cb.ChatID, s); err != nil {
		log.Printf("set max results in group %d: %v", cb.ChatID, err)
		return []Reply{textReply(cb.ChatID, msgInternalError)}
	}
	return []Reply{settingsMenu(cb.ChatID, s)}
}

func (r *Router) cbGroupStats(ctx context.Context, cb Callback, group *models.Group) []Reply {
	files, err := r.files.CountFiles(ctx, cb.ChatID)
	if err != nil {
		log.Printf("count files in group %d: %v", cb.ChatID, err)
		return []Reply{textReply(cb.ChatID, msgInternalError)}
	}
	kinds, err := r.logs.CountByKind(ctx, cb.ChatID)
	if err != nil {
		log.Printf("count ai usage in group %d: %v", cb.ChatID, err)
		return []Reply{textReply(cb.ChatID, msgInternalError)}
	}
	tags, err := r.files.TagDistribution(ctx, cb.ChatID, 10)
	if err != nil {
		log.Printf("tag distribution in group %d: %v", cb.ChatID, err)
		return []Reply{textReply(cb.ChatID, msgInternalError)}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Files indexed: %d\nAI requests: %d\n", files, group.Stats.TotalAIRequests)
	if len(kinds) > 0 {
		b.WriteString("AI usage by kind:\n")
		for kind, n := range kinds {
			fmt.Fprintf(&b, "  %s: %d\n", kind, n)
		}
	}
	if len(tags) > 0 {
		b.WriteString("Top tags:\n")
		for _, t := range tags {
			fmt.Fprintf(&b, "  %s (%d)\n", t.Tag, t.Count)
		}
	}
	return []Reply{{
		ChatID:  cb.ChatID,
		Text:    b.String(),
		Buttons: [][]Button{{{Label: "Back", Data: "admin:back"}}},
	}}
}

func (r *Router) cbTopUsers(ctx context.Context, cb Callback) []Reply {
	top, err := r.files.TopUploaders(ctx, cb.ChatID, 5)
	if err != nil {
		log.Printf("top uploaders in group %d: %v", cb.ChatID, err)
		return []Reply{textReply(cb.ChatID, msgInternalError)}
	}
	if len(top) == 0 {
		return []Reply{textReply(cb.ChatID, "Nobody has indexed a file yet.")}
	}
	var b strings.Builder
	b.WriteString("Top contributors:\n")
	for i, u := range top {
		name := u.Username
		if name == "" {
			name = strconv.FormatInt(u.UploaderID, 10)
		}
		fmt.Fprintf(&b, "%d. %s (%d files)\n", i+1, name, u.Count)
	}
	return []Reply{{
		ChatID:  cb.ChatID,
		Text:    b.String(),
		Buttons: [][]Button{{{Label: "Back", Data: "admin:back"}}},
	}}
}

func (r *Router) cbBlockedUsers(cb Callback, group *models.Group) []Reply {
	if len(group.Settings.BlockedUsers) == 0 {
		return []Reply{{
			ChatID:  cb.ChatID,
			Text:    "No blocked users.",
			Buttons: [][]Button{{{Label: "Back", Data: "admin:back"}}},
		}}
	}
	var buttons [][]Button
	for _, id := range group.Settings.BlockedUsers {
		buttons = append(buttons, []Button{{
			Label: fmt.Sprintf("Unblock %d", id),
			Data:  fmt.Sprintf("admin:unblock:%d", id),
		}})
	}
	buttons = append(buttons, []Button{{Label: "Back", Data: "admin:back"}})
	return []Reply{{ChatID: cb.ChatID, Text: "Blocked users:", Buttons: buttons}}
}

func (r *Router) cbBlock(ctx context.Context, cb Callback, arg string, block bool) []Reply {
	userID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil
	}
	if block {
		err = r.groups.BlockUser(ctx, cb.ChatID, userID)
	} else {
		err = r.groups.UnblockUser(ctx, cb.ChatID, userID)
	}
	if err != nil {
		log.Printf("block change for user %d in group %d: %v", userID, cb.ChatID, err)
		return []Reply{textReply(cb.ChatID, msgInternalError)}
	}
	if block {
		return []Reply{textReply(cb.ChatID, fmt.Sprintf("Blocked user %d.", userID))}
	}
	return []Reply{textReply(cb.ChatID, fmt.Sprintf("Unblocked user %d.", userID))}
}

func (r *Router) cmdGlobalAdmin(ctx context.Context, msg Message) []Reply {
	if !r.checker.IsGlobalAdmin(msg.From.ID) {
		return []Reply{textReply(msg.Chat.ID, msgNotAllowed)}
	}
	return []Reply{{
		ChatID: msg.Chat.ID,
		Text:   "Global admin panel",
		Buttons: [][]Button{
			{{Label: "All Groups", Data: "global_admin:groups"}},
			{{Label: "Global Statistics", Data: "global_admin:stats"}},
			{{Label: "Close", Data: "global_admin:close"}},
		},
	}}
}

func (r *Router) cbGlobalAdmin(ctx context.Context, cb Callback, rest string) []Reply {
	if !r.checker.IsGlobalAdmin(cb.From.ID) {
		return []Reply{textReply(cb.ChatID, msgNotAllowed)}
	}
	action, arg, _ := strings.Cut(rest, ":")
	switch action {
	case "close":
		return []Reply{textReply(cb.ChatID, "Closed.")}
	case "groups":
		groups, err := r.groups.ListGroups(ctx, 0, 20)
		if err != nil {
			log.Printf("list groups: %v", err)
			return []Reply{textReply(cb.ChatID, msgInternalError)}
		}
		if len(groups) == 0 {
			return []Reply{textReply(cb.ChatID, "No groups registered.")}
		}
		var b strings.Builder
		b.WriteString("Registered groups:\n")
		for _, g := range groups {
			fmt.Fprintf(&b, "%s (%d): %d files, %d AI requests\n",
				g.Title, g.ChatID, g.Stats.TotalFiles, g.Stats.TotalAIRequests)
		}
		return []Reply{textReply(cb.ChatID, b.String())}
	case "stats":
		stats, err := r.groups.GetGlobalStats(ctx)
		if err != nil {
			log.Printf("global stats: %v", err)
			return []Reply{textReply(cb.ChatID, msgInternalError)}
		}
		return []Reply{textReply(cb.ChatID, fmt.Sprintf(
			"Groups: %d\nUsers: %d\nFiles: %d\nAI requests: %d",
			stats.TotalGroups, stats.TotalUsers, stats.TotalFiles, stats.TotalAIRequests))}
	case "delete_group":
		chatID, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil
		}
		if err := r.groups.DeleteGroup(ctx, chatID); err != nil {
			if errors.Is(err, settings.ErrGroupNotFound) {
				return []Reply{textReply(cb.ChatID, "No such group.")}
			}
			log.Printf("delete group %d: %v", chatID, err)
			return []Reply{textReply(cb.ChatID, msgInternalError)}
		}
		return []Reply{textReply(cb.ChatID, fmt.Sprintf("Deleted group %d and all of its records.", chatID))}
	default:
		return nil
	}
}

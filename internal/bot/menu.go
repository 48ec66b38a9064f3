package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ai-profile-studio/internal/catalog"
	"ai-profile-studio/internal/rules"
	"ai-profile-studio/internal/state"
	"ai-profile-studio/internal/studio"
)

const callbackPrefix = "cfg"

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.From == nil {
		return nil
	}
	data := strings.TrimSpace(q.Data)
	if !strings.HasPrefix(data, callbackPrefix+":") {
		return nil
	}

	parts := strings.Split(data, ":")
	if len(parts) < 3 {
		return nil
	}

	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil
	}
	if ownerID != q.From.ID || ownerID != h.ownerID {
		_ = h.tg.AnswerCallback(q.ID, msgNotYourMenu, true)
		return nil
	}

	action := parts[2]
	args := parts[3:]
	chatID := q.Message.Chat.ID
	h.setMenu(chatID, func(m *menuState) { m.messageID = q.Message.MessageID })

	switch action {
	case "menu":
		idx := -1
		if len(args) >= 1 && args[0] != "main" {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 || n >= h.studio.Catalog().Len() {
				_ = h.tg.AnswerCallback(q.ID, msgStaleMenu, false)
				return h.renderMenu(chatID, true)
			}
			idx = n
		}
		h.setMenu(chatID, func(m *menuState) { m.category = idx })
		_ = h.tg.AnswerCallback(q.ID, "", false)
	case "opt":
		if len(args) < 2 {
			return nil
		}
		cat, ok := h.categoryAt(args[0])
		if !ok {
			_ = h.tg.AnswerCallback(q.ID, msgStaleMenu, false)
			return h.renderMenu(chatID, true)
		}
		prevSeq := uint64(0)
		if n := h.studio.View().Notification; n != nil {
			prevSeq = n.Seq
		}
		v, err := h.studio.Select(cat.ID, args[1])
		if err != nil {
			_ = h.tg.AnswerCallback(q.ID, msgStaleMenu, false)
			return h.renderMenu(chatID, true)
		}
		if n := v.Notification; n != nil && n.Seq != prevSeq && n.Kind == state.NoticeWarning {
			_ = h.tg.AnswerCallback(q.ID, n.Message, true)
		} else {
			_ = h.tg.AnswerCallback(q.ID, "", false)
		}
		h.setMenu(chatID, func(m *menuState) { m.category = -1 })
	case "prompt":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.tg.SendText(chatID, "📄 "+h.studio.Prompt())
	case "generate":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.generate(ctx, chatID)
	case "unref":
		h.studio.RemoveReference()
		_ = h.tg.AnswerCallback(q.ID, "", false)
	case "download":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.downloadAll(chatID)
	case "reset":
		v := h.studio.Reset()
		if v.Notification != nil {
			_ = h.tg.AnswerCallback(q.ID, v.Notification.Message, false)
		}
		h.setMenu(chatID, func(m *menuState) { m.category = -1 })
	case "close":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.tg.EditTextWithKeyboard(chatID, q.Message.MessageID, msgClosed, tgbotapi.NewInlineKeyboardMarkup())
	default:
		_ = h.tg.AnswerCallback(q.ID, "OK", false)
	}

	return h.renderMenu(chatID, true)
}

func (h *Handler) categoryAt(raw string) (catalog.Category, bool) {
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return catalog.Category{}, false
	}
	cats := h.studio.Catalog().Categories()
	if idx < 0 || idx >= len(cats) {
		return catalog.Category{}, false
	}
	return cats[idx], true
}

func (h *Handler) renderMenu(chatID int64, edit bool) error {
	m := h.setMenu(chatID, nil)
	v := h.studio.View()

	text := menuText(h.studio.Catalog(), v, m.category)
	kb := menuKeyboard(h.ownerID, h.studio.Catalog(), v, m.category)

	if edit && m.messageID != 0 {
		if err := h.tg.EditTextWithKeyboard(chatID, m.messageID, text, kb); err == nil {
			return nil
		}
	}

	msgID, err := h.tg.SendTextWithKeyboard(chatID, text, kb)
	if err != nil {
		return err
	}
	h.setMenu(chatID, func(m *menuState) { m.messageID = msgID })
	return nil
}

func menuText(c *catalog.Catalog, v studio.View, category int) string {
	cats := c.Categories()

	var b strings.Builder
	if category >= 0 && category < len(cats) {
		cat := cats[category]
		b.WriteString(cat.Label + "\n\n")
		b.WriteString("현재: " + optionLabel(cat, v.Selections.Get(cat.ID)))
		return b.String()
	}

	b.WriteString("📸 AI 프로필 스튜디오\n\n")
	for _, cat := range cats {
		b.WriteString(fmt.Sprintf("• %s: %s\n", cat.Label, optionLabel(cat, v.Selections.Get(cat.ID))))
	}
	b.WriteString("\n")
	if v.Reference != nil {
		b.WriteString(fmt.Sprintf("참조 이미지: %dx%d ✅\n", v.Reference.Width, v.Reference.Height))
	} else {
		b.WriteString("참조 이미지: 없음 (사진을 보내면 설정됩니다)\n")
	}
	if v.SafetyEngaged {
		b.WriteString("⚠️ 안전 필터가 구도를 미디엄샷으로 고정했습니다.\n")
	}
	if v.Loading {
		b.WriteString("⏳ 이미지 생성 중...\n")
	} else if len(v.Images) > 0 {
		b.WriteString(fmt.Sprintf("최근 결과: %d개\n", len(v.Images)))
	}
	return strings.TrimSpace(b.String())
}

func optionLabel(cat catalog.Category, id string) string {
	if o, ok := cat.Option(id); ok {
		return o.Label
	}
	return "-"
}

func menuKeyboard(ownerID int64, c *catalog.Catalog, v studio.View, category int) tgbotapi.InlineKeyboardMarkup {
	cats := c.Categories()
	if category >= 0 && category < len(cats) {
		return optionKeyboard(ownerID, category, cats[category], v)
	}
	return mainKeyboard(ownerID, cats, v)
}

func mainKeyboard(ownerID int64, cats []catalog.Category, v studio.View) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i, cat := range cats {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(shortLabel(cat.Label), cb(ownerID, "menu", strconv.Itoa(i))))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	generateText := "🎨 생성"
	if v.Loading {
		generateText = "⏳ 생성 중"
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("📄 프롬프트", cb(ownerID, "prompt")),
		tgbotapi.NewInlineKeyboardButtonData(generateText, cb(ownerID, "generate")),
	})

	var extra []tgbotapi.InlineKeyboardButton
	if v.Reference != nil {
		extra = append(extra, tgbotapi.NewInlineKeyboardButtonData("🗑 참조 이미지 삭제", cb(ownerID, "unref")))
	}
	if len(v.Images) > 0 {
		extra = append(extra, tgbotapi.NewInlineKeyboardButtonData("⬇ 모두 다운로드", cb(ownerID, "download")))
	}
	if len(extra) > 0 {
		rows = append(rows, extra)
	}

	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("초기화", cb(ownerID, "reset")),
		tgbotapi.NewInlineKeyboardButtonData("닫기", cb(ownerID, "close")),
	})

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// optionKeyboard lists the options that currently apply, so hairstyles of
// the other gender are never offered.
func optionKeyboard(ownerID int64, index int, cat catalog.Category, v studio.View) tgbotapi.InlineKeyboardMarkup {
	current := v.Selections.Get(cat.ID)

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, o := range rules.EffectiveOptions(cat, v.Selections) {
		label := o.Label
		if o.ID == current {
			label = "✅ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, "opt", strconv.Itoa(index), o.ID)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅ 뒤로", cb(ownerID, "menu", "main")),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// shortLabel drops the parenthesised English part of a category label.
func shortLabel(label string) string {
	if i := strings.Index(label, " ("); i > 0 {
		return label[:i]
	}
	return label
}

func cb(ownerID int64, parts ...string) string {
	return fmt.Sprintf("%s:%d:%s", callbackPrefix, ownerID, strings.Join(parts, ":"))
}

// Package bot is the Telegram front-end. It serves one owner and drives the
// same studio the web front-end uses.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ai-profile-studio/internal/mediagroup"
	"ai-profile-studio/internal/state"
	"ai-profile-studio/internal/studio"
)

const (
	msgWelcome = "📸 AI 프로필 스튜디오\n\n" +
		"아래 메뉴에서 옵션을 고르고 🎨 생성을 누르세요.\n" +
		"사진을 보내면 참조 이미지로 사용합니다.\n\n" +
		"명령어:\n" +
		"/start - 메뉴 열기\n" +
		"/prompt - 현재 프롬프트 보기\n" +
		"/generate - 이미지 생성\n" +
		"/reset - 모든 옵션 초기화\n" +
		"/key <API 키> - Gemini API 키 저장\n" +
		"/clearkey - API 키 삭제"
	msgNotOwner      = "이 봇은 소유자만 사용할 수 있습니다."
	msgNotYourMenu   = "이 메뉴는 다른 사용자의 것입니다."
	msgNeedKey       = "먼저 /key <API 키> 로 Gemini API 키를 설정해주세요."
	msgKeyUsage      = "사용법: /key <API 키>"
	msgUnknown       = "알 수 없는 명령어입니다. /start 를 사용해주세요."
	msgDownloadFail  = "사진을 내려받는 중 오류가 발생했습니다."
	msgAlbumFirst    = "앨범의 첫 번째 사진만 참조 이미지로 사용합니다."
	msgStaleMenu     = "메뉴가 만료되었습니다. 다시 선택해주세요."
	msgNothingToSend = "다운로드할 이미지가 없습니다."
	msgClosed        = "메뉴를 닫았습니다. /start 로 다시 열 수 있습니다."
)

// Messenger is the part of the Telegram client the handler uses.
type Messenger interface {
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(callbackID, text string, alert bool) error
	DeleteMessage(chatID int64, messageID int) error
	SendTyping(chatID int64)
	SendPhoto(chatID int64, name string, data []byte, caption string) error
	SendDocument(chatID int64, name string, data []byte, caption string) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

type Options struct {
	Messenger Messenger
	Studio    *studio.Studio
	OwnerID   int64
	Logger    *slog.Logger
}

type Handler struct {
	tg         Messenger
	studio     *studio.Studio
	ownerID    int64
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator

	mu    sync.Mutex
	menus map[int64]*menuState
	// starting is the chat that asked for the generation being begun;
	// pending is the chat and epoch waiting for its result.
	starting int64
	pending  pendingGeneration

	wg sync.WaitGroup
}

type pendingGeneration struct {
	chatID int64
	epoch  uint64
}

type menuState struct {
	messageID int
	// category is the index of the open option menu, -1 for the main menu.
	category int
}

func New(opts Options) (*Handler, error) {
	if opts.Messenger == nil {
		return nil, errors.New("messenger is nil")
	}
	if opts.Studio == nil {
		return nil, errors.New("studio is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := &Handler{
		tg:      opts.Messenger,
		studio:  opts.Studio,
		ownerID: opts.OwnerID,
		logger:  logger,
		menus:   make(map[int64]*menuState),
	}
	opts.Studio.Subscribe(h.onStudioChange)
	return h, nil
}

// Wait blocks until pending result deliveries have been sent.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	if msg.From.ID != h.ownerID {
		h.logger.Warn("message from non-owner", "user_id", msg.From.ID, "username", msg.From.UserName)
		return h.tg.SendText(chatID, msgNotOwner)
	}

	switch {
	case msg.IsCommand():
		return h.handleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		photo := msg.Photo[len(msg.Photo)-1]
		return h.handleImageFile(ctx, msg, photo.FileID, "telegram-photo.jpg")
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		return h.handleImageFile(ctx, msg, msg.Document.FileID, msg.Document.FileName)
	case strings.TrimSpace(msg.Text) != "":
		return h.tg.SendText(chatID, msgUnknown)
	}
	return nil
}

// HandleMediaGroup applies an album. Only one reference image is live, so
// the first photo wins.
func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	if group.UserID != h.ownerID {
		return
	}
	fileID, name := group.First()
	if fileID == "" {
		return
	}
	if len(group.FileIDs) > 1 {
		_ = h.tg.SendText(group.ChatID, msgAlbumFirst)
	}
	if err := h.useReference(ctx, group.ChatID, fileID, name); err != nil {
		h.logger.Error("media group processing failed", "err", err)
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start", "help":
		if err := h.tg.SendText(chatID, msgWelcome); err != nil {
			return err
		}
		if !h.studio.HasCredential() {
			return h.tg.SendText(chatID, msgNeedKey)
		}
		return h.renderMenu(chatID, false)
	case "prompt":
		return h.tg.SendText(chatID, "📄 "+h.studio.Prompt())
	case "generate":
		return h.generate(ctx, chatID)
	case "reset":
		v := h.studio.Reset()
		h.setMenu(chatID, func(m *menuState) { m.category = -1 })
		if err := h.sendNotice(chatID, v); err != nil {
			return err
		}
		return h.renderMenu(chatID, true)
	case "key":
		// The key should not linger in the chat history.
		if err := h.tg.DeleteMessage(chatID, msg.MessageID); err != nil {
			h.logger.Warn("delete key message failed", "err", err)
		}
		key := strings.TrimSpace(msg.CommandArguments())
		if key == "" {
			return h.tg.SendText(chatID, msgKeyUsage)
		}
		v, err := h.studio.SaveCredential(key)
		if err != nil {
			h.logger.Error("save credential failed", "err", err)
			return h.tg.SendText(chatID, "❌ "+err.Error())
		}
		if err := h.sendNotice(chatID, v); err != nil {
			return err
		}
		return h.renderMenu(chatID, false)
	case "clearkey":
		v, err := h.studio.ClearCredential()
		if err != nil {
			h.logger.Error("clear credential failed", "err", err)
			return h.tg.SendText(chatID, "❌ "+err.Error())
		}
		return h.sendNotice(chatID, v)
	default:
		return h.tg.SendText(chatID, msgUnknown)
	}
}

func (h *Handler) handleImageFile(ctx context.Context, msg *tgbotapi.Message, fileID, name string) error {
	if msg.MediaGroupID != "" && h.aggregator != nil {
		h.aggregator.Add(mediagroup.Item{
			ChatID:       msg.Chat.ID,
			UserID:       msg.From.ID,
			MediaGroupID: msg.MediaGroupID,
			FileID:       fileID,
			FileName:     name,
		})
		return nil
	}
	return h.useReference(ctx, msg.Chat.ID, fileID, name)
}

func (h *Handler) useReference(ctx context.Context, chatID int64, fileID, name string) error {
	data, err := h.tg.DownloadFile(ctx, fileID)
	if err != nil {
		h.logger.Error("photo download failed", "err", err)
		return h.tg.SendText(chatID, "❌ "+msgDownloadFail)
	}

	v, uploadErr := h.studio.Upload(data, name)
	if err := h.sendNotice(chatID, v); err != nil {
		return err
	}
	if uploadErr != nil {
		return nil
	}
	return h.renderMenu(chatID, true)
}

// generate starts a background generation. The update loop stays free; the
// result is sent by onStudioChange once the request completes.
func (h *Handler) generate(ctx context.Context, chatID int64) error {
	if !h.studio.HasCredential() {
		return h.tg.SendText(chatID, msgNeedKey)
	}

	h.tg.SendTyping(chatID)
	out := h.studio.View().Output
	_ = h.tg.SendText(chatID, fmt.Sprintf("🎨 이미지 %d개를 생성합니다 (비율 %s). 잠시만 기다려주세요.", out.Count, out.AspectRatio))

	h.mu.Lock()
	h.starting = chatID
	h.mu.Unlock()
	epoch := h.studio.StartGeneration(ctx)
	h.logger.Info("generation queued", "chat_id", chatID, "epoch", epoch)
	return h.renderMenu(chatID, true)
}

// onStudioChange watches for the completion of the generation this bot
// started. It runs inside studio delivery, so it only hands off.
func (h *Handler) onStudioChange(v studio.View) {
	h.mu.Lock()
	if v.Loading {
		if h.starting != 0 {
			h.pending = pendingGeneration{chatID: h.starting, epoch: v.Epoch}
			h.starting = 0
		}
		h.mu.Unlock()
		return
	}
	p := h.pending
	if p.chatID == 0 || p.epoch != v.Epoch {
		h.mu.Unlock()
		return
	}
	h.pending = pendingGeneration{}
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.sendResult(p.chatID, v); err != nil {
			h.logger.Error("send generation result failed", "chat_id", p.chatID, "err", err)
		}
	}()
}

func (h *Handler) sendResult(chatID int64, v studio.View) error {
	if n := v.Notification; n != nil && n.Kind == state.NoticeError {
		if err := h.tg.SendText(chatID, "❌ "+n.Message); err != nil {
			return err
		}
		return h.renderMenu(chatID, false)
	}

	caption := ""
	if v.Notification != nil {
		caption = "✅ " + v.Notification.Message
	}
	for i := range v.Images {
		d, err := h.studio.Image(i)
		if err != nil {
			break
		}
		sendCaption := ""
		if i == 0 {
			sendCaption = caption
		}
		if err := h.tg.SendPhoto(chatID, d.Filename, d.Data, sendCaption); err != nil {
			return err
		}
	}
	return h.renderMenu(chatID, false)
}

func (h *Handler) downloadAll(chatID int64) error {
	files := h.studio.DownloadAll()
	if len(files) == 0 {
		return h.tg.SendText(chatID, msgNothingToSend)
	}
	for _, f := range files {
		if err := h.tg.SendDocument(chatID, f.Filename, f.Data, ""); err != nil {
			return err
		}
	}
	return nil
}

// sendNotice relays the view's notification as a chat message.
func (h *Handler) sendNotice(chatID int64, v studio.View) error {
	n := v.Notification
	if n == nil {
		return nil
	}
	prefix := "ℹ️ "
	switch n.Kind {
	case state.NoticeWarning:
		prefix = "⚠️ "
	case state.NoticeError:
		prefix = "❌ "
	}
	return h.tg.SendText(chatID, prefix+n.Message)
}

func (h *Handler) setMenu(chatID int64, fn func(*menuState)) menuState {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.menus[chatID]
	if !ok {
		m = &menuState{category: -1}
		h.menus[chatID] = m
	}
	if fn != nil {
		fn(m)
	}
	return *m
}

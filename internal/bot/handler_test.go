package bot

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strconv"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-profile-studio/internal/credential"
	"ai-profile-studio/internal/generation"
	"ai-profile-studio/internal/mediagroup"
	"ai-profile-studio/internal/studio"
)

const (
	owner  int64 = 42
	chatID int64 = 100
)

type sentFile struct {
	name    string
	caption string
}

type fakeMessenger struct {
	mu        sync.Mutex
	texts     []string
	keyboards []tgbotapi.InlineKeyboardMarkup
	edits     int
	answers   []string
	alerts    []bool
	deleted   []int
	photos    []sentFile
	documents []sentFile
	files     map[string][]byte
	nextID    int
	editErr   error
}

func (f *fakeMessenger) SendText(_ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeMessenger) SendTextWithKeyboard(_ int64, text string, kb tgbotapi.InlineKeyboardMarkup) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.texts = append(f.texts, text)
	f.keyboards = append(f.keyboards, kb)
	return f.nextID, nil
}

func (f *fakeMessenger) EditTextWithKeyboard(_ int64, _ int, text string, kb tgbotapi.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits++
	f.texts = append(f.texts, text)
	f.keyboards = append(f.keyboards, kb)
	return nil
}

func (f *fakeMessenger) AnswerCallback(_ string, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeMessenger) DeleteMessage(_ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeMessenger) SendTyping(int64) {}

func (f *fakeMessenger) SendPhoto(_ int64, name string, _ []byte, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, sentFile{name: name, caption: caption})
	return nil
}

func (f *fakeMessenger) SendDocument(_ int64, name string, _ []byte, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, sentFile{name: name, caption: caption})
	return nil
}

func (f *fakeMessenger) DownloadFile(_ context.Context, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[fileID]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (f *fakeMessenger) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeMessenger) lastKeyboard() tgbotapi.InlineKeyboardMarkup {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keyboards[len(f.keyboards)-1]
}

type fakeGenerator struct {
	release chan struct{}
	err     error
}

func (f fakeGenerator) Generate(_ context.Context, req generation.Request) (generation.Result, error) {
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return generation.Result{}, f.err
	}
	res := generation.Result{Requested: req.ImageCount}
	for i := 0; i < req.ImageCount; i++ {
		res.Images = append(res.Images, generation.Image{Data: []byte{byte(i)}, MIMEType: "image/jpeg"})
	}
	return res, nil
}

func newHandler(t *testing.T, key string) (*Handler, *fakeMessenger, *studio.Studio) {
	t.Helper()
	return newHandlerWith(t, key, fakeGenerator{})
}

func newHandlerWith(t *testing.T, key string, gen fakeGenerator) (*Handler, *fakeMessenger, *studio.Studio) {
	t.Helper()
	st, err := studio.New(studio.Options{
		Credentials: credential.NewMemoryStore(key),
		Generator:   gen,
	})
	require.NoError(t, err)

	fm := &fakeMessenger{files: map[string][]byte{}}
	h, err := New(Options{Messenger: fm, Studio: st, OwnerID: owner})
	require.NoError(t, err)
	return h, fm, st
}

func command(from int64, text string) tgbotapi.Update {
	name := strings.SplitN(text, " ", 2)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 9,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func callback(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

func findButton(kb tgbotapi.InlineKeyboardMarkup, prefix string) (tgbotapi.InlineKeyboardButton, bool) {
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			if strings.HasPrefix(b.Text, prefix) {
				return b, true
			}
		}
	}
	return tgbotapi.InlineKeyboardButton{}, false
}

func TestNonOwnerIsRejected(t *testing.T) {
	h, fm, _ := newHandler(t, "k")

	require.NoError(t, h.HandleUpdate(context.Background(), command(7, "/start")))
	assert.Equal(t, msgNotOwner, fm.lastText())

	require.NoError(t, h.HandleUpdate(context.Background(), callback(7, cb(owner, "reset"))))
	require.Len(t, fm.answers, 1)
	assert.Equal(t, msgNotYourMenu, fm.answers[0])
	assert.True(t, fm.alerts[0])
}

func TestStartWithoutKey(t *testing.T) {
	h, fm, _ := newHandler(t, "")
	require.NoError(t, h.HandleUpdate(context.Background(), command(owner, "/start")))
	assert.Equal(t, msgNeedKey, fm.lastText())
	assert.Empty(t, fm.keyboards)

	require.NoError(t, h.HandleUpdate(context.Background(), command(owner, "/generate")))
	assert.Equal(t, msgNeedKey, fm.lastText())
}

func TestKeyCommand(t *testing.T) {
	h, fm, st := newHandler(t, "")

	require.NoError(t, h.HandleUpdate(context.Background(), command(owner, "/key")))
	assert.Equal(t, msgKeyUsage, fm.lastText())

	require.NoError(t, h.HandleUpdate(context.Background(), command(owner, "/key secret")))
	assert.True(t, st.HasCredential())
	assert.Equal(t, []int{9, 9}, fm.deleted)
	assert.Len(t, fm.keyboards, 1, "menu opens after saving")

	require.NoError(t, h.HandleUpdate(context.Background(), command(owner, "/clearkey")))
	assert.False(t, st.HasCredential())
}

func TestMenuNavigationAndSelect(t *testing.T) {
	h, fm, st := newHandler(t, "k")
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command(owner, "/start")))
	hair, ok := findButton(fm.lastKeyboard(), "헤어")
	require.True(t, ok)

	require.NoError(t, h.HandleUpdate(ctx, callback(owner, *hair.CallbackData)))
	_, ok = findButton(fm.lastKeyboard(), "✅ ")
	assert.True(t, ok, "current option is marked")
	assert.Equal(t, 1, fm.edits)

	ageIdx := -1
	for i, c := range st.Catalog().Categories() {
		if c.ID == "age" {
			ageIdx = i
		}
	}
	require.NoError(t, h.HandleUpdate(ctx, callback(owner, cb(owner, "opt", strconv.Itoa(ageIdx), "male_20s"))))
	assert.Equal(t, "male_20s", st.View().Selections.Get("age"))
	assert.Equal(t, "short_male", st.View().Selections.Get("hair"))

	require.NoError(t, h.HandleUpdate(ctx, callback(owner, *hair.CallbackData)))
	for _, row := range fm.lastKeyboard().InlineKeyboard {
		for _, b := range row {
			assert.NotContains(t, *b.CallbackData, ":bob", "female hairstyles are hidden")
		}
	}
}

func TestSafetyWarningAlert(t *testing.T) {
	h, fm, st := newHandler(t, "k")
	ctx := context.Background()

	idx := map[string]int{}
	for i, c := range st.Catalog().Categories() {
		idx[c.ID] = i
	}
	require.NoError(t, h.HandleUpdate(ctx, callback(owner, cb(owner, "opt", strconv.Itoa(idx["outfit_style"]), "bikini"))))
	require.NoError(t, h.HandleUpdate(ctx, callback(owner, cb(owner, "opt", strconv.Itoa(idx["composition"]), "fullbody"))))

	require.Len(t, fm.answers, 2)
	assert.True(t, fm.alerts[1])
	assert.Contains(t, fm.answers[1], "안전 필터")
	assert.Equal(t, "medium", st.View().Selections.Get("composition"))
}

func TestStaleCallback(t *testing.T) {
	h, fm, _ := newHandler(t, "k")
	require.NoError(t, h.HandleUpdate(context.Background(), callback(owner, cb(owner, "opt", "999", "x"))))
	assert.Equal(t, msgStaleMenu, fm.answers[0])
}

func TestGenerateAndDownload(t *testing.T) {
	release := make(chan struct{})
	h, fm, st := newHandlerWith(t, "k", fakeGenerator{release: release})
	ctx := context.Background()
	_, err := st.Select("numberOfImages", "2")
	require.NoError(t, err)

	require.NoError(t, h.HandleUpdate(ctx, command(owner, "/generate")))
	_, ok := findButton(fm.lastKeyboard(), "⏳")
	assert.True(t, ok, "menu shows the running generation")
	assert.Empty(t, fm.photos)

	// The bot keeps answering while the provider is busy.
	require.NoError(t, h.HandleUpdate(ctx, command(owner, "/prompt")))
	assert.True(t, strings.HasPrefix(fm.lastText(), "📄 "))

	close(release)
	st.Wait()
	h.Wait()

	require.Len(t, fm.photos, 2)
	assert.Contains(t, fm.photos[0].caption, "이미지 생성이 완료되었습니다!")
	assert.Empty(t, fm.photos[1].caption)

	_, ok = findButton(fm.lastKeyboard(), "⬇")
	assert.True(t, ok)

	require.NoError(t, h.HandleUpdate(ctx, callback(owner, cb(owner, "download"))))
	require.Len(t, fm.documents, 2)
	assert.True(t, strings.HasSuffix(fm.documents[1].name, "-2.jpg"))
}

func TestGenerateFailureIsReported(t *testing.T) {
	h, fm, st := newHandlerWith(t, "k", fakeGenerator{err: &generation.Error{Kind: generation.KindQuotaExceeded}})

	require.NoError(t, h.HandleUpdate(context.Background(), callback(owner, cb(owner, "generate"))))
	st.Wait()
	h.Wait()

	assert.Empty(t, fm.photos)
	fm.mu.Lock()
	defer fm.mu.Unlock()
	var found bool
	for _, text := range fm.texts {
		if strings.HasPrefix(text, "❌ 생성 실패: ") {
			found = true
		}
	}
	assert.True(t, found, "texts: %v", fm.texts)
}

func TestResetDropsPendingResult(t *testing.T) {
	release := make(chan struct{})
	h, fm, st := newHandlerWith(t, "k", fakeGenerator{release: release})
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command(owner, "/generate")))
	require.NoError(t, h.HandleUpdate(ctx, command(owner, "/reset")))
	close(release)
	st.Wait()
	h.Wait()

	assert.Empty(t, fm.photos)
	assert.False(t, st.View().Loading)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 3))))
	return buf.Bytes()
}

func TestPhotoBecomesReference(t *testing.T) {
	h, fm, st := newHandler(t, "k")
	fm.files["f1"] = pngBytes(t)

	update := tgbotapi.Update{Message: &tgbotapi.Message{
		From:  &tgbotapi.User{ID: owner},
		Chat:  &tgbotapi.Chat{ID: chatID},
		Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "f1"}},
	}}
	require.NoError(t, h.HandleUpdate(context.Background(), update))
	require.NotNil(t, st.View().Reference)
	assert.Contains(t, strings.Join(fm.texts, "\n"), "참조 이미지가 업로드되었습니다.")

	require.NoError(t, h.HandleUpdate(context.Background(), callback(owner, cb(owner, "unref"))))
	assert.Nil(t, st.View().Reference)
}

func TestBadPhotoKeepsState(t *testing.T) {
	h, fm, st := newHandler(t, "k")
	fm.files["bad"] = []byte("nope")

	update := tgbotapi.Update{Message: &tgbotapi.Message{
		From:  &tgbotapi.User{ID: owner},
		Chat:  &tgbotapi.Chat{ID: chatID},
		Photo: []tgbotapi.PhotoSize{{FileID: "bad"}},
	}}
	require.NoError(t, h.HandleUpdate(context.Background(), update))
	assert.Nil(t, st.View().Reference)
	assert.True(t, strings.HasPrefix(fm.lastText(), "❌ "))
}

func TestMediaGroupUsesFirstPhoto(t *testing.T) {
	h, fm, st := newHandler(t, "k")
	fm.files["a"] = pngBytes(t)

	h.HandleMediaGroup(context.Background(), mediagroup.Group{
		ChatID: chatID, UserID: owner,
		FileIDs: []string{"a", "b"}, FileNames: []string{"a.png", "b.png"},
	})
	require.NotNil(t, st.View().Reference)
	assert.Equal(t, "a.png", st.View().Reference.Name)
	assert.Contains(t, fm.texts, msgAlbumFirst)

	h.HandleMediaGroup(context.Background(), mediagroup.Group{ChatID: chatID, UserID: 7, FileIDs: []string{"a"}, FileNames: []string{""}})
}

func TestRenderFallsBackToSend(t *testing.T) {
	h, fm, _ := newHandler(t, "k")
	fm.editErr = errors.New("message to edit not found")

	require.NoError(t, h.HandleUpdate(context.Background(), callback(owner, cb(owner, "menu", "main"))))
	assert.Len(t, fm.keyboards, 1)
	assert.Zero(t, fm.edits)
}

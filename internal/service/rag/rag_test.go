// Package rag 提供编排器单元测试
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"gorm.io/gorm"

	"github.com/ashwinyue/botdesk/internal/model"
	"github.com/ashwinyue/botdesk/internal/service/chunker"
	"github.com/ashwinyue/botdesk/internal/service/types"
	"github.com/ashwinyue/botdesk/internal/service/vectorstore"
)

// ========== Mock 实现 ==========

type mockChatbotRepo struct {
	bots map[string]*model.Chatbot
}

func newMockChatbotRepo() *mockChatbotRepo {
	return &mockChatbotRepo{bots: make(map[string]*model.Chatbot)}
}

func (m *mockChatbotRepo) GetChatbotByID(id string) (*model.Chatbot, error) {
	if bot, ok := m.bots[id]; ok {
		return bot, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockChatbotRepo) GetChatbotByIDAndUser(id, userID string) (*model.Chatbot, error) {
	if bot, ok := m.bots[id]; ok && bot.UserID == userID {
		return bot, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type mockConvoStore struct {
	sessions map[string]*model.ChatSession
	messages map[string][]*model.ChatMessage
	nextID   int
}

func newMockConvoStore() *mockConvoStore {
	return &mockConvoStore{
		sessions: make(map[string]*model.ChatSession),
		messages: make(map[string][]*model.ChatMessage),
	}
}

func (m *mockConvoStore) ResolveOrCreateSession(ctx context.Context, userID, chatbotID, sessionID string) (*model.ChatSession, error) {
	if sessionID != "" {
		if session, ok := m.sessions[sessionID]; ok && session.UserID == userID && session.ChatbotID == chatbotID {
			return session, nil
		}
	}
	m.nextID++
	session := &model.ChatSession{
		ID: fmt.Sprintf("session-%d", m.nextID), UserID: userID, ChatbotID: chatbotID, Title: "New Chat",
	}
	m.sessions[session.ID] = session
	return session, nil
}

func (m *mockConvoStore) AppendMessage(ctx context.Context, sessionID, role, content, metadata string) (*model.ChatMessage, error) {
	msg := &model.ChatMessage{
		ID:        fmt.Sprintf("msg-%d", len(m.messages[sessionID])),
		SessionID: sessionID, Role: role, Content: content, Metadata: metadata,
	}
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	return msg, nil
}

func (m *mockConvoStore) RecentHistory(ctx context.Context, sessionID string, limit int) ([]*model.ChatMessage, error) {
	messages := m.messages[sessionID]
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

type mockEmbedder struct {
	embedErr    error
	embedAllErr error
	calls       int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	m.calls++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return []float64{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float64, error) {
	m.calls++
	if m.embedAllErr != nil {
		return nil, m.embedAllErr
	}
	vectors := make([][]float64, len(texts))
	for i := range texts {
		vectors[i] = []float64{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

type mockIndex struct {
	collections map[string][]vectorstore.Entry
	queryHits   []vectorstore.Result
	queryErr    error
	dropped     []string
	ensured     []string
}

func newMockIndex() *mockIndex {
	return &mockIndex{collections: make(map[string][]vectorstore.Entry)}
}

func (m *mockIndex) EnsureCollection(ctx context.Context, key vectorstore.TenantKey) error {
	m.ensured = append(m.ensured, key.CollectionName())
	if _, ok := m.collections[key.CollectionName()]; !ok {
		m.collections[key.CollectionName()] = []vectorstore.Entry{}
	}
	return nil
}

func (m *mockIndex) Upsert(ctx context.Context, key vectorstore.TenantKey, entries []vectorstore.Entry) error {
	m.collections[key.CollectionName()] = append(m.collections[key.CollectionName()], entries...)
	return nil
}

func (m *mockIndex) Query(ctx context.Context, key vectorstore.TenantKey, vector []float64, topK int) ([]vectorstore.Result, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if _, ok := m.collections[key.CollectionName()]; !ok {
		return nil, vectorstore.ErrCollectionNotFound
	}
	if len(m.queryHits) > topK {
		return m.queryHits[:topK], nil
	}
	return m.queryHits, nil
}

func (m *mockIndex) DropCollection(ctx context.Context, key vectorstore.TenantKey) error {
	m.dropped = append(m.dropped, key.CollectionName())
	delete(m.collections, key.CollectionName())
	return nil
}

type mockChatModel struct {
	response string
	err      error
	prompts  [][]*schema.Message
}

func (m *mockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	m.prompts = append(m.prompts, input)
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.response, nil), nil
}

type mockExtractor struct {
	text string
	err  error
}

func (m *mockExtractor) Text(ctx context.Context, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

// ========== 测试环境 ==========

type testEnv struct {
	bots      *mockChatbotRepo
	convo     *mockConvoStore
	embedder  *mockEmbedder
	index     *mockIndex
	chatModel *mockChatModel
	extractor *mockExtractor
	orch      *Orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ck, err := chunker.New(500, 100)
	if err != nil {
		t.Fatalf("chunker.New() unexpected error: %v", err)
	}

	env := &testEnv{
		bots:      newMockChatbotRepo(),
		convo:     newMockConvoStore(),
		embedder:  &mockEmbedder{},
		index:     newMockIndex(),
		chatModel: &mockChatModel{response: "generated answer"},
		extractor: &mockExtractor{text: strings.Repeat("a", 1000)},
	}
	env.orch = NewOrchestrator(env.bots, env.convo, env.embedder, env.index, env.chatModel, env.extractor, ck, Options{
		TopK: 3, PublicTopK: 5, HistoryLimit: 10,
		Persona: "You are a helpful customer support chatbot.",
	})

	env.bots.bots["bot-1"] = &model.Chatbot{ID: "bot-1", UserID: "user-1", Name: "Support Bot"}
	return env
}

// ========== Query ==========

func TestQueryHappyPath(t *testing.T) {
	env := newTestEnv(t)
	env.index.collections["chatbot_bot-1"] = []vectorstore.Entry{}
	env.index.queryHits = []vectorstore.Result{
		{ID: "doc-0", Text: "refund policy text", Score: 1.9},
		{ID: "doc-1", Text: "shipping info", Score: 1.4},
	}

	result, err := env.orch.Query(context.Background(), &QueryRequest{
		UserID: "user-1", ChatbotID: "bot-1", Message: "what is the refund policy?",
	})
	if err != nil {
		t.Fatalf("Query() unexpected error: %v", err)
	}

	if result.Response != "generated answer" {
		t.Errorf("Response = %s, want generated answer", result.Response)
	}
	if len(result.Context) != 2 {
		t.Errorf("Context length = %d, want 2", len(result.Context))
	}
	if result.SessionID == "" {
		t.Error("SessionID is empty")
	}

	// 一轮问答落库两条消息：用户 + 助手
	messages := env.convo.messages[result.SessionID]
	if len(messages) != 2 {
		t.Fatalf("persisted messages = %d, want 2", len(messages))
	}
	if messages[0].Role != "user" || messages[1].Role != "assistant" {
		t.Errorf("message roles = %s/%s, want user/assistant", messages[0].Role, messages[1].Role)
	}
	if !strings.Contains(messages[1].Metadata, "refund policy text") {
		t.Errorf("assistant metadata missing retrieved context: %s", messages[1].Metadata)
	}

	// 提示词结构：人设 -> 当前提问 -> 上下文
	prompt := env.chatModel.prompts[0]
	if prompt[0].Role != schema.System || !strings.Contains(prompt[0].Content, "customer support") {
		t.Errorf("prompt[0] = %+v, want persona system message", prompt[0])
	}
	last := prompt[len(prompt)-1]
	if last.Role != schema.System || !strings.HasPrefix(last.Content, "Context: ") {
		t.Errorf("last prompt message = %+v, want context system message", last)
	}
	if !strings.Contains(last.Content, "refund policy text") {
		t.Errorf("context message missing retrieved chunk: %s", last.Content)
	}
}

func TestQueryEmptyCollection(t *testing.T) {
	env := newTestEnv(t)
	// 未曾上传文档，集合不存在

	result, err := env.orch.Query(context.Background(), &QueryRequest{
		UserID: "user-1", ChatbotID: "bot-1", Message: "hello",
	})
	if err != nil {
		t.Fatalf("Query() unexpected error: %v", err)
	}
	if len(result.Context) != 0 {
		t.Errorf("Context length = %d, want 0", len(result.Context))
	}
	if result.Response != "generated answer" {
		t.Errorf("Response = %s, want generated answer", result.Response)
	}

	// 无上下文时提示词不含 Context 消息
	prompt := env.chatModel.prompts[0]
	for _, msg := range prompt {
		if strings.HasPrefix(msg.Content, "Context: ") {
			t.Errorf("prompt unexpectedly contains context message: %s", msg.Content)
		}
	}
}

func TestQueryStaleSessionID(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.orch.Query(context.Background(), &QueryRequest{
		UserID: "user-1", ChatbotID: "bot-1", SessionID: "stale-id", Message: "hello",
	})
	if err != nil {
		t.Fatalf("Query() unexpected error: %v", err)
	}

	// 过期的会话 ID 不报错，而是切换到新会话继续
	if result.SessionID == "" || result.SessionID == "stale-id" {
		t.Errorf("SessionID = %s, want a freshly created session", result.SessionID)
	}
	session, ok := env.convo.sessions[result.SessionID]
	if !ok {
		t.Fatal("new session not persisted")
	}
	if session.Title != "New Chat" {
		t.Errorf("Title = %s, want New Chat", session.Title)
	}
	if got := len(env.convo.messages[result.SessionID]); got != 2 {
		t.Errorf("persisted messages = %d, want 2", got)
	}
}

func TestQueryHistoryOrdering(t *testing.T) {
	env := newTestEnv(t)

	first, err := env.orch.Query(context.Background(), &QueryRequest{
		UserID: "user-1", ChatbotID: "bot-1", Message: "first question",
	})
	if err != nil {
		t.Fatalf("first Query() unexpected error: %v", err)
	}

	env.chatModel.response = "second answer"
	_, err = env.orch.Query(context.Background(), &QueryRequest{
		UserID: "user-1", ChatbotID: "bot-1", SessionID: first.SessionID, Message: "second question",
	})
	if err != nil {
		t.Fatalf("second Query() unexpected error: %v", err)
	}

	// 第二轮的提示词应包含第一轮的完整问答对，且当前提问只出现一次
	prompt := env.chatModel.prompts[1]
	var contents []string
	for _, msg := range prompt {
		contents = append(contents, msg.Content)
	}
	joined := strings.Join(contents, "|")

	firstQ := strings.Index(joined, "first question")
	firstA := strings.Index(joined, "generated answer")
	secondQ := strings.Index(joined, "second question")
	if firstQ < 0 || firstA < 0 || secondQ < 0 {
		t.Fatalf("prompt missing history: %s", joined)
	}
	if !(firstQ < firstA && firstA < secondQ) {
		t.Errorf("history out of order: q1=%d a1=%d q2=%d", firstQ, firstA, secondQ)
	}
	if strings.Count(joined, "second question") != 1 {
		t.Errorf("current question appears %d times, want 1", strings.Count(joined, "second question"))
	}
}

func TestQueryChatbotNotFound(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name      string
		userID    string
		chatbotID string
	}{
		{name: "unknown chatbot", userID: "user-1", chatbotID: "missing"},
		{name: "chatbot of another user", userID: "user-2", chatbotID: "bot-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.orch.Query(context.Background(), &QueryRequest{
				UserID: tt.userID, ChatbotID: tt.chatbotID, Message: "hello",
			})
			if !errors.Is(err, types.ErrChatbotNotFound) {
				t.Errorf("Query() error = %v, want ErrChatbotNotFound", err)
			}
		})
	}
}

func TestQueryCompletionFailure(t *testing.T) {
	env := newTestEnv(t)
	env.chatModel.err = errors.New("upstream timeout")

	_, err := env.orch.Query(context.Background(), &QueryRequest{
		UserID: "user-1", ChatbotID: "bot-1", Message: "hello",
	})
	if !errors.Is(err, ErrCompletionService) {
		t.Fatalf("Query() error = %v, want ErrCompletionService", err)
	}
}

// ========== PublicQuery ==========

func TestPublicQueryAuth(t *testing.T) {
	tests := []struct {
		name    string
		bot     *model.Chatbot
		botID   string
		apiKey  string
		wantErr error
	}{
		{
			name:    "unknown chatbot",
			botID:   "missing",
			apiKey:  "anything",
			wantErr: types.ErrChatbotNotFound,
		},
		{
			name:    "widget disabled",
			bot:     &model.Chatbot{ID: "bot-1", UserID: "user-1", WidgetEnabled: false, APIKey: "secret"},
			botID:   "bot-1",
			apiKey:  "secret",
			wantErr: types.ErrWidgetNotEnabled,
		},
		{
			name:    "widget enabled without key configured",
			bot:     &model.Chatbot{ID: "bot-1", UserID: "user-1", WidgetEnabled: true, APIKey: ""},
			botID:   "bot-1",
			apiKey:  "anything",
			wantErr: types.ErrWidgetNotEnabled,
		},
		{
			name:    "missing api key",
			bot:     &model.Chatbot{ID: "bot-1", UserID: "user-1", WidgetEnabled: true, APIKey: "secret"},
			botID:   "bot-1",
			apiKey:  "",
			wantErr: types.ErrInvalidAPIKey,
		},
		{
			name:    "wrong api key",
			bot:     &model.Chatbot{ID: "bot-1", UserID: "user-1", WidgetEnabled: true, APIKey: "secret"},
			botID:   "bot-1",
			apiKey:  "wrong",
			wantErr: types.ErrInvalidAPIKey,
		},
		{
			name:   "valid api key",
			bot:    &model.Chatbot{ID: "bot-1", UserID: "user-1", WidgetEnabled: true, APIKey: "secret"},
			botID:  "bot-1",
			apiKey: "secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			delete(env.bots.bots, "bot-1")
			if tt.bot != nil {
				env.bots.bots[tt.bot.ID] = tt.bot
			}

			result, err := env.orch.PublicQuery(context.Background(), &PublicQueryRequest{
				ChatbotID: tt.botID, APIKey: tt.apiKey, Message: "hello",
			})

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("PublicQuery() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("PublicQuery() unexpected error: %v", err)
			}
			if result.Response != "generated answer" {
				t.Errorf("Response = %s, want generated answer", result.Response)
			}
		})
	}
}

func TestPublicQuerySessionless(t *testing.T) {
	env := newTestEnv(t)
	env.bots.bots["bot-1"].WidgetEnabled = true
	env.bots.bots["bot-1"].APIKey = "secret"

	_, err := env.orch.PublicQuery(context.Background(), &PublicQueryRequest{
		ChatbotID: "bot-1", APIKey: "secret", Message: "hello",
	})
	if err != nil {
		t.Fatalf("PublicQuery() unexpected error: %v", err)
	}

	// 公开查询不创建会话也不落库
	if len(env.convo.sessions) != 0 {
		t.Errorf("sessions created = %d, want 0", len(env.convo.sessions))
	}
	for id, msgs := range env.convo.messages {
		if len(msgs) != 0 {
			t.Errorf("messages persisted for session %s", id)
		}
	}
}

// ========== Ingest ==========

func TestIngest(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.orch.Ingest(context.Background(), &IngestRequest{
		UserID: "user-1", ChatbotID: "bot-1", Filename: "manual.pdf", Data: []byte("%PDF"),
	})
	if err != nil {
		t.Fatalf("Ingest() unexpected error: %v", err)
	}

	// 1000 字符按 500/100 切出 3 块
	if result.Chunks != 3 {
		t.Errorf("Chunks = %d, want 3", result.Chunks)
	}

	entries := env.index.collections["chatbot_bot-1"]
	if len(entries) != 3 {
		t.Fatalf("indexed entries = %d, want 3", len(entries))
	}
	if entries[0].ID != "manual.pdf-0" || entries[2].ID != "manual.pdf-2" {
		t.Errorf("entry IDs = %s..%s, want manual.pdf-0..manual.pdf-2", entries[0].ID, entries[2].ID)
	}
	if len(env.index.dropped) != 0 {
		t.Errorf("collection dropped on non-replace ingest")
	}
}

func TestIngestReplace(t *testing.T) {
	env := newTestEnv(t)
	env.index.collections["chatbot_bot-1"] = []vectorstore.Entry{{ID: "old.pdf-0"}}

	result, err := env.orch.Ingest(context.Background(), &IngestRequest{
		UserID: "user-1", ChatbotID: "bot-1", Filename: "new.pdf", Data: []byte("%PDF"), Replace: true,
	})
	if err != nil {
		t.Fatalf("Ingest() unexpected error: %v", err)
	}
	if !result.Replaced {
		t.Error("Replaced = false, want true")
	}

	if len(env.index.dropped) != 1 {
		t.Fatalf("dropped collections = %d, want 1", len(env.index.dropped))
	}
	entries := env.index.collections["chatbot_bot-1"]
	for _, entry := range entries {
		if strings.HasPrefix(entry.ID, "old.pdf") {
			t.Errorf("old entry %s survived replace", entry.ID)
		}
	}
}

func TestIngestEmbedFailureKeepsCollection(t *testing.T) {
	env := newTestEnv(t)
	env.index.collections["chatbot_bot-1"] = []vectorstore.Entry{{ID: "old.pdf-0"}}
	env.embedder.embedAllErr = errors.New("rate limit")

	_, err := env.orch.Ingest(context.Background(), &IngestRequest{
		UserID: "user-1", ChatbotID: "bot-1", Filename: "new.pdf", Data: []byte("%PDF"), Replace: true,
	})
	if err == nil {
		t.Fatal("Ingest() expected error, got nil")
	}

	// 向量化发生在清空集合之前，失败时旧数据原样保留
	if len(env.index.dropped) != 0 {
		t.Errorf("collection dropped despite embedding failure")
	}
	if len(env.index.collections["chatbot_bot-1"]) != 1 {
		t.Errorf("existing entries lost after failed replace")
	}
}

func TestIngestOwnership(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orch.Ingest(context.Background(), &IngestRequest{
		UserID: "user-2", ChatbotID: "bot-1", Filename: "manual.pdf", Data: []byte("%PDF"),
	})
	if !errors.Is(err, types.ErrChatbotNotFound) {
		t.Fatalf("Ingest() error = %v, want ErrChatbotNotFound", err)
	}
}

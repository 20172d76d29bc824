package chi

import (
	"context"
	"io"
	"strings"

	"github.com/kailas-cloud/llmgate/internal/domain"
	"github.com/kailas-cloud/llmgate/internal/transport/chat"
	generateuc "github.com/kailas-cloud/llmgate/internal/usecase/generate"
	healthuc "github.com/kailas-cloud/llmgate/internal/usecase/health"
	usageuc "github.com/kailas-cloud/llmgate/internal/usecase/usage"
)

// --- Mocks ---

type mockStreams struct {
	script  string
	openErr error

	generateReq *chat.Request
	searchReq   *chat.Request
}

func (m *mockStreams) OpenGenerateStream(_ context.Context, req chat.Request) (io.ReadCloser, error) {
	m.generateReq = &req
	if m.openErr != nil {
		return nil, m.openErr
	}
	return io.NopCloser(strings.NewReader(m.script)), nil
}

func (m *mockStreams) OpenSearchStream(_ context.Context, req chat.Request) (io.ReadCloser, error) {
	m.searchReq = &req
	if m.openErr != nil {
		return nil, m.openErr
	}
	return io.NopCloser(strings.NewReader(m.script)), nil
}

type mockGenerator struct {
	result chat.GenerateResult
	err    error
	params *generateuc.Params
}

func (m *mockGenerator) Generate(ctx context.Context, p generateuc.Params) (chat.GenerateResult, error) {
	m.params = &p
	if m.err != nil {
		return chat.GenerateResult{}, m.err
	}
	if u := domain.UsageFromContext(ctx); u != nil {
		u.AddTokens(m.result.Usage.TotalTokens)
	}
	return m.result, nil
}

type mockBatch struct {
	result domain.BatchResult
	err    error
	texts  []string
}

func (m *mockBatch) Process(ctx context.Context, texts []string) (domain.BatchResult, error) {
	m.texts = texts
	if m.err != nil {
		return domain.BatchResult{}, m.err
	}
	if u := domain.UsageFromContext(ctx); u != nil {
		u.AddTokens(m.result.TotalTokens)
	}
	return m.result, nil
}

type mockUsageService struct {
	recorded []*domain.RequestUsage
	report   usageuc.Report
	err      error
}

func (m *mockUsageService) Record(_ context.Context, u *domain.RequestUsage) {
	m.recorded = append(m.recorded, u)
}

func (m *mockUsageService) GetReport(_ context.Context) (usageuc.Report, error) {
	if m.err != nil {
		return usageuc.Report{}, m.err
	}
	return m.report, nil
}

type mockHealthService struct {
	report healthuc.Report
}

func (m *mockHealthService) Check(_ context.Context) healthuc.Report {
	return m.report
}

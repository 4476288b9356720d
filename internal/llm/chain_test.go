package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"studyqa/internal/llm"
	"studyqa/internal/llm/mocks"
)

func TestCompleterChain(t *testing.T) {
	params := llm.CompletionParams{MaxTokens: 10}

	t.Run("falls back to next provider", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		first := mocks.NewMockCompleter(ctrl)
		second := mocks.NewMockCompleter(ctrl)
		first.EXPECT().Complete(gomock.Any(), "p", params).Return("", errors.New("quota"))
		second.EXPECT().Complete(gomock.Any(), "p", params).Return("answer", nil)

		chain := llm.NewCompleterChain(time.Second,
			llm.NamedCompleter{Name: "openai", Completer: first},
			llm.NamedCompleter{Name: "local", Completer: second},
		)
		got, err := chain.Complete(context.Background(), "p", params)
		if err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if got != "answer" {
			t.Errorf("Complete() = %q, want answer", got)
		}
	})

	t.Run("first success stops the chain", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		first := mocks.NewMockCompleter(ctrl)
		second := mocks.NewMockCompleter(ctrl)
		first.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any()).Return("fast", nil)

		chain := llm.NewCompleterChain(0,
			llm.NamedCompleter{Name: "a", Completer: first},
			llm.NamedCompleter{Name: "b", Completer: second},
		)
		if got, _ := chain.Complete(context.Background(), "p", params); got != "fast" {
			t.Errorf("Complete() = %q", got)
		}
	})

	t.Run("all fail", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		only := mocks.NewMockCompleter(ctrl)
		only.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("down"))

		chain := llm.NewCompleterChain(0, llm.NamedCompleter{Name: "a", Completer: only})
		_, err := chain.Complete(context.Background(), "p", params)
		if !errors.Is(err, llm.ErrAllProvidersFailed) {
			t.Errorf("Complete() error = %v, want ErrAllProvidersFailed", err)
		}
	})

	t.Run("attempt is bounded by the timeout", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		slow := mocks.NewMockCompleter(ctrl)
		slow.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, _ string, _ llm.CompletionParams) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			})

		chain := llm.NewCompleterChain(10*time.Millisecond, llm.NamedCompleter{Name: "slow", Completer: slow})
		if _, err := chain.Complete(context.Background(), "p", params); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Complete() error = %v, want deadline exceeded", err)
		}
	})
}

func TestEmbedderChain(t *testing.T) {
	vec := func(v ...float32) []float32 { return v }

	t.Run("blank inputs never reach a provider", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		p := mocks.NewMockEmbedder(ctrl)

		chain := llm.NewEmbedderChain(8, nil, 0, p)
		res, err := chain.Embed(context.Background(), []string{"", "  \n\t"})
		if err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
		if len(res.Vectors) != 0 {
			t.Errorf("Embed() = %d vectors, want 0", len(res.Vectors))
		}
	})

	t.Run("batches and filters", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		p := mocks.NewMockEmbedder(ctrl)
		gomock.InOrder(
			p.EXPECT().Embed(gomock.Any(), []string{"a", "b"}).Return(llm.EmbeddingResult{
				Vectors: [][]float32{vec(1, 0), vec(0, 1)}, Provider: "local", Model: "m",
			}, nil),
			p.EXPECT().Embed(gomock.Any(), []string{"c"}).Return(llm.EmbeddingResult{
				Vectors: [][]float32{vec(1, 1)}, Provider: "local", Model: "m",
			}, nil),
		)

		chain := llm.NewEmbedderChain(2, nil, 0, p)
		res, err := chain.Embed(context.Background(), []string{"a", " ", "b", "c"})
		if err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
		if len(res.Vectors) != 3 || res.Provider != "local" {
			t.Errorf("Embed() = %d vectors from %q", len(res.Vectors), res.Provider)
		}
	})

	t.Run("provider failing mid-request falls back for the whole request", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		remote := mocks.NewMockEmbedder(ctrl)
		local := mocks.NewMockEmbedder(ctrl)
		remote.EXPECT().Embed(gomock.Any(), []string{"a"}).Return(llm.EmbeddingResult{
			Vectors: [][]float32{vec(1, 2, 3)}, Provider: "openai",
		}, nil)
		remote.EXPECT().Embed(gomock.Any(), []string{"b"}).Return(llm.EmbeddingResult{}, errors.New("rate limited"))
		local.EXPECT().Embed(gomock.Any(), []string{"a"}).Return(llm.EmbeddingResult{
			Vectors: [][]float32{vec(1, 2)}, Provider: "local",
		}, nil)
		local.EXPECT().Embed(gomock.Any(), []string{"b"}).Return(llm.EmbeddingResult{
			Vectors: [][]float32{vec(3, 4)}, Provider: "local",
		}, nil)

		chain := llm.NewEmbedderChain(1, nil, 0, remote, local)
		res, err := chain.Embed(context.Background(), []string{"a", "b"})
		if err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
		if res.Provider != "local" || res.Dimension() != 2 || len(res.Vectors) != 2 {
			t.Errorf("Embed() = %+v", res)
		}
	})

	t.Run("single text is cached", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		p := mocks.NewMockEmbedder(ctrl)
		p.EXPECT().Embed(gomock.Any(), []string{"question"}).Return(llm.EmbeddingResult{
			Vectors: [][]float32{vec(0.5)}, Provider: "local", Model: "m",
		}, nil).Times(1)

		chain := llm.NewEmbedderChain(4, llm.NewEmbeddingCache(4), 0, p)
		for i := 0; i < 3; i++ {
			res, err := chain.Embed(context.Background(), []string{"question"})
			if err != nil || len(res.Vectors) != 1 || res.Vectors[0][0] != 0.5 {
				t.Fatalf("Embed() = %+v, %v", res, err)
			}
		}
	})

	t.Run("all fail", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		p := mocks.NewMockEmbedder(ctrl)
		p.EXPECT().Embed(gomock.Any(), gomock.Any()).Return(llm.EmbeddingResult{}, errors.New("down"))

		chain := llm.NewEmbedderChain(4, nil, 0, p)
		if _, err := chain.Embed(context.Background(), []string{"x"}); !errors.Is(err, llm.ErrAllProvidersFailed) {
			t.Errorf("Embed() error = %v", err)
		}
	})
}

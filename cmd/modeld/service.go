package main

import (
	"context"
	"fmt"

	"modeld/internal/config"
	"modeld/internal/detect"
	"modeld/internal/inspector"
	"modeld/internal/llamaproc"
	"modeld/internal/registry"
	"modeld/internal/switcher"
	"modeld/pkg/types"
)

// service implements httpapi.Service by routing completions through the
// registry and switcher, and detection runs through the detect engine.
type service struct {
	install       *llamaproc.Installation
	reg           *registry.Registry
	sw            *switcher.Switcher
	parser        inspector.Parser
	contextLadder []int
	defaultModel  string
}

func newService(install *llamaproc.Installation, reg *registry.Registry, cfg config.Config) *service {
	return &service{
		install:       install,
		reg:           reg,
		sw:            switcher.New(),
		parser:        inspector.NewParser(),
		contextLadder: cfg.ContextLadder,
		defaultModel:  cfg.DefaultModel,
	}
}

func (s *service) Complete(ctx context.Context, req types.CompletionRequest) (types.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = s.defaultModel
	}
	cfg, ok := s.reg.SelectSpec(model, req.ContextSize)
	if !ok {
		return types.CompletionResponse{}, &llamaproc.Error{
			Kind: llamaproc.KindNotFound,
			Msg:  fmt.Sprintf("no configuration accepts model %q at context size %d", model, req.ContextSize),
		}
	}
	pending := llamaproc.Spec{Install: s.install, Config: cfg}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}

	return switcher.WithContext(s.sw, pending, func(lc *llamaproc.Context) (types.CompletionResponse, error) {
		res, err := lc.Client().Complete(ctx, req.Prompt, maxTokens)
		if err != nil {
			return types.CompletionResponse{}, err
		}
		return types.CompletionResponse{
			PromptPerSecond:    res.PromptPerSecond,
			PredictedPerSecond: res.PredictedPerSecond,
		}, nil
	})
}

func (s *service) Detect(ctx context.Context, req types.DetectRequest) (types.DetectionResult, error) {
	fileInfo, err := inspector.Inspect(s.parser, req.ModelPath)
	if err != nil {
		return types.DetectionResult{}, err
	}
	result, err := detect.Run(ctx, s.install, req.ModelPath, fileInfo, s.contextLadder)
	if err != nil {
		return types.DetectionResult{}, err
	}
	s.reg.AddDetectionResult(result, req.Aliases, req.ModelPath)
	return result, nil
}

func (s *service) Ready() bool {
	_, err := s.install.Version(context.Background())
	return err == nil
}

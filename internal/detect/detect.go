// Package detect implements the Detection Engine (§4.5): a per-context-size
// search over the llama-server configuration space that exploits
// monotonicity to prune, benchmarking every candidate it probes.
package detect

import (
	"context"
	"time"

	"modeld/internal/llamaproc"
	"modeld/pkg/types"
)

// ContextLadder is the ascending sequence of context sizes searched by Run,
// in units of 1024 tokens (ladderUnit).
var ContextLadder = []int{4, 8, 16, 24, 32, 48, 64, 96, 128, 192, 256}

const ladderUnit = 1024

// defaultContextLimit is used when a model's GGUF metadata doesn't advertise
// a context length.
const defaultContextLimit = 128 * ladderUnit

// BenchmarkPrompts are the three fixed prompts used to score a config.
var BenchmarkPrompts = []string{
	"What is machine learning and how does it differ from traditional programming?",
	"What are the essential ingredients needed to make pasta from scratch?",
	"How many players are on a basketball team during a game?",
}

const benchmarkMaxTokens = 20
const completionTimeout = 120 * time.Second

// OverridePatterns is the predefined list of tensor-override patterns tried
// at every context size, pruned as patterns stop surviving.
var OverridePatterns = []types.OverridePattern{
	{"ffn_up.*=CPU"},
	{"ffn_down.*=CPU"},
	{"ffn_gate.*=CPU"},
	{"ffn_up.*=CPU", "ffn_down.*=CPU"},
	{"ffn_up.*=CPU", "ffn_gate.*=CPU"},
	{"attn.*=CPU"},
}

var flashAttentionValues = []types.FlashAttention{types.FlashAttentionOn, types.FlashAttentionOff}

// Run searches the configuration space for modelPath, whose inspected
// metadata is fileInfo, and returns a DetectionResult with one benchmark per
// feasible context size. Every error from a probe, of any Kind (not only
// StartFailed, Timeout and ProtocolError), counts as an infeasible config
// and is not returned; only an error from install.HasCUDA aborts the whole
// run. A nil or empty ladder falls back to
// the package default ContextLadder.
func Run(ctx context.Context, install *llamaproc.Installation, modelPath string, fileInfo types.ModelFileInfo, ladder []int) (types.DetectionResult, error) {
	if len(ladder) == 0 {
		ladder = ContextLadder
	}
	hasGPU, err := install.HasCUDA()
	if err != nil {
		return types.DetectionResult{}, err
	}

	contextLimit := defaultContextLimit
	if fileInfo.ContextLength != nil {
		contextLimit = *fileInfo.ContextLength
	}
	blockCount := fileInfo.BlockCount

	b := &searchState{
		ctx:          ctx,
		install:      install,
		modelPath:    modelPath,
		blockCount:   blockCount,
		maxGPU:       map[types.FlashAttention]*int{},
		minNCpuMoe:   map[types.FlashAttention]*int{},
		survivors:    map[types.FlashAttention][]types.OverridePattern{},
	}
	for _, fa := range flashAttentionValues {
		b.survivors[fa] = append([]types.OverridePattern(nil), OverridePatterns...)
	}

	result := types.DetectionResult{FileInfo: fileInfo}
	for _, rung := range ladder {
		ctxSize := rung * ladderUnit
		if ctxSize > contextLimit {
			break
		}
		var candidates []types.Benchmark
		if hasGPU {
			candidates = b.searchGPU(ctxSize)
		} else {
			candidates = b.searchCPUOnly(ctxSize)
		}
		if winner, ok := bestOf(candidates); ok {
			result.Benchmarks = append(result.Benchmarks, winner)
		}
	}
	return result, nil
}

// bestOf returns the highest-scoring benchmark, if any.
func bestOf(candidates []types.Benchmark) (types.Benchmark, bool) {
	if len(candidates) == 0 {
		return types.Benchmark{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Score() > best.Score() {
			best = c
		}
	}
	return best, true
}

// searchState carries the install handle and the monotonicity hints that
// persist across ascending context sizes.
type searchState struct {
	ctx        context.Context
	install    *llamaproc.Installation
	modelPath  string
	blockCount int

	maxGPU     map[types.FlashAttention]*int
	minNCpuMoe map[types.FlashAttention]*int
	survivors  map[types.FlashAttention][]types.OverridePattern
}

func (b *searchState) base(ctxSize int) types.ServerConfig {
	return types.ServerConfig{ModelPath: b.modelPath, ContextSize: ctxSize}
}

func (b *searchState) searchCPUOnly(ctxSize int) []types.Benchmark {
	var out []types.Benchmark
	for _, fa := range flashAttentionValues {
		cfg := b.base(ctxSize)
		cfg.FlashAttention = fa
		if bm, ok := b.benchmark(cfg); ok {
			out = append(out, bm)
		}
	}
	return out
}

func (b *searchState) searchGPU(ctxSize int) []types.Benchmark {
	var out []types.Benchmark
	for _, fa := range flashAttentionValues {
		everything := b.base(ctxSize)
		everything.FlashAttention = fa
		everything = everything.WithGPULayers(999)
		if bm, ok := b.benchmark(everything); ok {
			out = append(out, bm)
			continue
		}

		maxRight := 999
		if b.blockCount < maxRight {
			maxRight = b.blockCount
		}
		if prev := b.maxGPU[fa]; prev != nil && *prev < maxRight {
			maxRight = *prev
		}
		gpuValue, gpuBench, found := binarySearch(0, maxRight, true, nil, func(v int) (types.Benchmark, bool) {
			cfg := b.base(ctxSize)
			cfg.FlashAttention = fa
			cfg = cfg.WithGPULayers(v)
			return b.benchmark(cfg)
		})
		if found {
			b.maxGPU[fa] = &gpuValue
			// A maximizing search that only succeeds at 0 means CPU-only;
			// emit the config with GPULayers unset rather than an explicit
			// 0, which is a different wire config under ServerConfig.Accept.
			if gpuValue == 0 {
				gpuBench.Config.GPULayers = nil
			}
			out = append(out, gpuBench)
		}

		moeValue, moeBench, foundMoe := binarySearch(0, b.blockCount, false, b.minNCpuMoe[fa], func(v int) (types.Benchmark, bool) {
			cfg := b.base(ctxSize)
			cfg.FlashAttention = fa
			cfg = cfg.WithGPULayers(999).WithNCpuMoe(v)
			return b.benchmark(cfg)
		})
		if foundMoe {
			b.minNCpuMoe[fa] = &moeValue
			out = append(out, moeBench)
		}

		var stillSurviving []types.OverridePattern
		for _, pattern := range b.survivors[fa] {
			cfg := b.base(ctxSize)
			cfg.FlashAttention = fa
			cfg = cfg.WithGPULayers(999).WithOverrideTensors(pattern)
			if bm, ok := b.benchmark(cfg); ok {
				out = append(out, bm)
				stillSurviving = append(stillSurviving, pattern)
			}
		}
		b.survivors[fa] = stillSurviving
	}
	return out
}

// binarySearch implements the §4.5 binary-search contract: if initialValue
// is set, it is probed first and a failure there returns immediately
// (monotone cutoff). Otherwise a standard integer binary search runs over
// [left, right], widening toward the objective on success and narrowing on
// failure, returning the most extreme successful value seen (or
// initialValue, if nothing improved on it).
func binarySearch(left, right int, maximize bool, initialValue *int, probe func(int) (types.Benchmark, bool)) (int, types.Benchmark, bool) {
	var best *int
	var bestBench types.Benchmark
	found := false

	if initialValue != nil {
		bm, ok := probe(*initialValue)
		if !ok {
			return 0, types.Benchmark{}, false
		}
		v := *initialValue
		best = &v
		bestBench = bm
		found = true
	}

	lo, hi := left, right
	for lo <= hi {
		mid := lo + (hi-lo)/2
		bm, ok := probe(mid)
		if ok {
			if best == nil || (maximize && mid > *best) || (!maximize && mid < *best) {
				v := mid
				best = &v
				bestBench = bm
				found = true
			}
			if maximize {
				lo = mid + 1
			} else {
				hi = mid - 1
			}
		} else {
			if maximize {
				hi = mid - 1
			} else {
				lo = mid + 1
			}
		}
	}

	if !found {
		return 0, types.Benchmark{}, false
	}
	return *best, bestBench, true
}

// benchmark starts a supervisor with cfg at an auto-port, runs the fixed
// prompt set, and tears the process down unconditionally. Probe failures
// (per llamaproc.IsProbeFailure) are reported as ok=false; any other error
// is also treated as ok=false, since detection only ever needs a pass/fail
// signal plus the resulting measurement.
func (b *searchState) benchmark(cfg types.ServerConfig) (types.Benchmark, bool) {
	sup := llamaproc.NewSupervisor(b.install, cfg)
	sup.LogWriter = discardWriter{}
	defer func() { _ = sup.Stop(true) }()

	if err := sup.Start(); err != nil {
		return types.Benchmark{}, false
	}

	client := llamaproc.NewCompletionClient(sup.BaseURL())
	var promptSum, genSum float64
	for _, prompt := range BenchmarkPrompts {
		cctx, cancel := context.WithTimeout(b.ctx, completionTimeout)
		res, err := client.Complete(cctx, prompt, benchmarkMaxTokens)
		cancel()
		if err != nil {
			return types.Benchmark{}, false
		}
		promptSum += res.PromptPerSecond
		genSum += res.PredictedPerSecond
	}
	n := float64(len(BenchmarkPrompts))
	return types.Benchmark{
		ContextSize:   cfg.ContextSize,
		Config:        cfg,
		PromptTps:     promptSum / n,
		GenerationTps: genSum / n,
	}, true
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

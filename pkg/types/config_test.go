package types

import "testing"

func TestAcceptIsReflexive(t *testing.T) {
	configs := []ServerConfig{
		{ModelPath: "a.gguf"},
		{ModelPath: "a.gguf", ContextSize: 8192, GPULayers: intPtr(32)},
		{ModelPath: "b.gguf", OverrideTensors: OverridePattern{"ffn_up.*=CPU"}},
	}
	for _, c := range configs {
		if !c.Accept(c) {
			t.Fatalf("expected %+v to accept itself", c)
		}
	}
}

func TestAcceptIsMonotoneInContext(t *testing.T) {
	c := ServerConfig{ModelPath: "a.gguf", ContextSize: 8192}
	d := ServerConfig{ModelPath: "a.gguf", ContextSize: 4096}
	dPrime := ServerConfig{ModelPath: "a.gguf", ContextSize: 2048}

	if !c.Accept(d) {
		t.Fatalf("expected larger-context config to accept smaller request")
	}
	if !c.Accept(dPrime) {
		t.Fatalf("expected acceptance to hold for an even smaller context request")
	}
}

func TestAcceptRejectsDifferentModel(t *testing.T) {
	c := ServerConfig{ModelPath: "a.gguf"}
	d := ServerConfig{ModelPath: "b.gguf"}
	if c.Accept(d) {
		t.Fatalf("expected different model paths to never be accepted")
	}
}

func TestAcceptRejectsLowerGPULayers(t *testing.T) {
	c := ServerConfig{ModelPath: "a.gguf", GPULayers: intPtr(10)}
	d := ServerConfig{ModelPath: "a.gguf", GPULayers: intPtr(20)}
	if c.Accept(d) {
		t.Fatalf("expected a config with fewer GPU layers to not satisfy a request for more")
	}
}

func TestAcceptRejectsWhenGPUUnsetButRequested(t *testing.T) {
	c := ServerConfig{ModelPath: "a.gguf"}
	d := ServerConfig{ModelPath: "a.gguf", GPULayers: intPtr(1)}
	if c.Accept(d) {
		t.Fatalf("expected a CPU-only config to not satisfy a GPU request")
	}
}

func TestAcceptRejectsHigherNCpuMoe(t *testing.T) {
	c := ServerConfig{ModelPath: "a.gguf", NCpuMoe: intPtr(4)}
	d := ServerConfig{ModelPath: "a.gguf", NCpuMoe: intPtr(1)}
	if c.Accept(d) {
		t.Fatalf("expected a higher nCpuMoe to not satisfy a request for a lower one")
	}
}

func TestServerConfigJSONRoundTrip(t *testing.T) {
	cfg := ServerConfig{
		ModelPath:       "a.gguf",
		ContextSize:     8192,
		GPULayers:       intPtr(32),
		NCpuMoe:         intPtr(2),
		OverrideTensors: OverridePattern{"ffn_up.*=CPU", "ffn_down.*=CPU"},
		FlashAttention:  FlashAttentionOn,
		Args:            []string{"--verbose"},
	}
	roundTripped := marshalUnmarshal(t, cfg)
	if !cfg.Equal(roundTripped) {
		t.Fatalf("round trip mismatch: %+v != %+v", cfg, roundTripped)
	}
}

func TestServerConfigJSONOmitsNullFields(t *testing.T) {
	cfg := ServerConfig{ModelPath: "a.gguf"}
	b := marshalBytes(t, cfg)
	s := string(b)
	for _, field := range []string{"gpuLayers", "nCpuMoe", "overrideTensors", "args", "host", "port", "threads", "contextSize", "embeddings", "flashAttention", "mlock"} {
		if containsKey(s, field) {
			t.Fatalf("expected unset field %q to be omitted from %s", field, s)
		}
	}
}

func intPtr(v int) *int { return &v }

package config

import "testing"

func TestDefault(t *testing.T) {
	p := Default()
	if p.NCtx != 512 {
		t.Errorf("NCtx = %d, want 512", p.NCtx)
	}
	if p.NParts != -1 {
		t.Errorf("NParts = %d, want -1", p.NParts)
	}
	if !p.UseMmap {
		t.Error("UseMmap = false, want true")
	}
	if p.UseMlock {
		t.Error("UseMlock = true, want false")
	}
	if p.Embedding {
		t.Error("Embedding = true, want false")
	}
}

func TestHParamsDerived(t *testing.T) {
	h := HParams{NVocab: 32000, NEmbd: 4096, NMult: 256, NHead: 32, NLayer: 32, NRot: 128, FType: AllF32}
	if got := h.HeadDim(); got != 128 {
		t.Errorf("HeadDim() = %d, want 128", got)
	}
	if got := h.NFF(); got != 11008 {
		t.Errorf("NFF() = %d, want 11008", got)
	}
}

func TestHParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		h       HParams
		wantErr bool
	}{
		{"valid 7B", HParams{NVocab: 32000, NEmbd: 4096, NMult: 256, NHead: 32, NLayer: 32, NRot: 128}, false},
		{"zero vocab", HParams{NVocab: 0, NEmbd: 4096, NMult: 256, NHead: 32, NLayer: 32, NRot: 128}, true},
		{"zero embd", HParams{NVocab: 32000, NEmbd: 0, NMult: 256, NHead: 32, NLayer: 32, NRot: 128}, true},
		{"embd not divisible by head", HParams{NVocab: 32000, NEmbd: 4097, NMult: 256, NHead: 32, NLayer: 32, NRot: 128}, true},
		{"zero layer", HParams{NVocab: 32000, NEmbd: 4096, NMult: 256, NHead: 32, NLayer: 0, NRot: 128}, true},
		{"zero mult", HParams{NVocab: 32000, NEmbd: 4096, NMult: 0, NHead: 32, NLayer: 32, NRot: 128}, true},
		{"rot exceeds head_dim", HParams{NVocab: 32000, NEmbd: 4096, NMult: 256, NHead: 32, NLayer: 32, NRot: 129}, true},
		{"zero rot", HParams{NVocab: 32000, NEmbd: 4096, NMult: 256, NHead: 32, NLayer: 32, NRot: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.h.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClassifyModel(t *testing.T) {
	tests := []struct {
		nLayer uint32
		want   ModelClass
	}{
		{32, Model7B},
		{40, Model13B},
		{60, Model30B},
		{80, Model65B},
		{24, ModelUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyModel(tt.nLayer); got != tt.want {
			t.Errorf("ClassifyModel(%d) = %v, want %v", tt.nLayer, got, tt.want)
		}
	}
}

func TestModelClassString(t *testing.T) {
	if Model7B.String() != "7B" {
		t.Errorf("Model7B.String() = %q, want 7B", Model7B.String())
	}
	if ModelUnknown.String() != "unknown" {
		t.Errorf("ModelUnknown.String() = %q, want unknown", ModelUnknown.String())
	}
}

func TestMemRequirementsFor(t *testing.T) {
	req := MemRequirementsFor(Model7B)
	if req.Model == 0 {
		t.Error("Model7B MemRequirements.Model = 0, want nonzero")
	}
	zero := MemRequirementsFor(ModelUnknown)
	if zero.Model != 0 {
		t.Errorf("ModelUnknown MemRequirements.Model = %d, want 0", zero.Model)
	}
}

func TestFTypeString(t *testing.T) {
	tests := []struct {
		f    FType
		want string
	}{
		{AllF32, "all_f32"},
		{MostlyF16, "mostly_f16"},
		{MostlyQ4_0, "mostly_q4_0"},
		{MostlyQ4_1, "mostly_q4_1"},
		{MostlyQ4_1SomeF16, "mostly_q4_1_some_f16"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("FType(%d).String() = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       Params
		wantErr bool
	}{
		{"default is valid", Default(), false},
		{"zero n_ctx", Params{NCtx: 0, NParts: -1}, true},
		{"negative n_parts not auto", Params{NCtx: 512, NParts: -2}, true},
		{"explicit n_parts", Params{NCtx: 512, NParts: 4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParamsValidateSeedsFromTime(t *testing.T) {
	p := Params{NCtx: 512, NParts: -1, Seed: 0}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.Seed <= 0 {
		t.Errorf("Seed = %d, want positive after Validate()", p.Seed)
	}
}

func TestValidateAgainst(t *testing.T) {
	h := HParams{NVocab: 32000, NEmbd: 4096, NMult: 256, NHead: 32, NLayer: 32, NRot: 128}
	good := Params{NCtx: 512, NParts: -1}
	if err := ValidateAgainst(h, good); err != nil {
		t.Errorf("ValidateAgainst() error = %v, want nil", err)
	}
	bad := Params{NCtx: 4, NParts: -1}
	if err := ValidateAgainst(h, bad); err == nil {
		t.Error("ValidateAgainst() with n_ctx < n_layer = nil, want error")
	}
}

package modal

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/BaSui01/aimodal/types"
)

// 默认 Provider
const (
	DefaultTextProvider  = "openai"
	DefaultTextModel     = "gpt-3.5-turbo"
	DefaultMaxTokens     = 150
	DefaultVideoProvider = "replicate"
)

// textProviders 是后端支持的文本 Provider
var textProviders = []string{"openai", "anthropic", "deepseek"}

// TextProviders 返回文本 Provider 列表
func TextProviders() []string {
	out := make([]string, len(textProviders))
	copy(out, textProviders)
	return out
}

// ValidateTextProvider 检查文本 Provider 是否受支持，空字符串表示由后端决定
func ValidateTextProvider(name string) error {
	if name == "" {
		return nil
	}
	for _, p := range textProviders {
		if p == name {
			return nil
		}
	}
	return types.NewError(types.ErrValidation, fmt.Sprintf(MsgUnknownProvider, name))
}

// =============================================================================
// 视频 Provider 参数模板
// =============================================================================

// Param 描述一个数值调优参数
type Param struct {
	Name    string
	Default float64
	Min     float64
	Max     float64
	Integer bool
}

// VideoProvider 描述一个视频生成 Provider 及其参数模板
type VideoProvider struct {
	Name   string
	Params []Param
}

var videoProviders = []VideoProvider{
	{
		Name: "replicate",
		Params: []Param{
			{Name: "num_frames", Default: 24, Min: 8, Max: 48, Integer: true},
			{Name: "fps", Default: 8, Min: 1, Max: 30, Integer: true},
			{Name: "width", Default: 576, Min: 256, Max: 1024, Integer: true},
			{Name: "height", Default: 320, Min: 256, Max: 1024, Integer: true},
			{Name: "motion_bucket_id", Default: 127, Min: 0, Max: 255, Integer: true},
		},
	},
	{
		Name: "stability",
		Params: []Param{
			{Name: "duration", Default: 3, Min: 1, Max: 10, Integer: true},
			{Name: "width", Default: 768, Min: 256, Max: 1024, Integer: true},
			{Name: "height", Default: 432, Min: 256, Max: 1024, Integer: true},
			{Name: "cfg_scale", Default: 7.5, Min: 1, Max: 20},
		},
	},
	{
		Name: "runway",
		Params: []Param{
			{Name: "num_steps", Default: 50, Min: 10, Max: 150, Integer: true},
			{Name: "fps", Default: 24, Min: 1, Max: 60, Integer: true},
		},
	},
}

// VideoProviders 返回所有视频 Provider
func VideoProviders() []VideoProvider {
	out := make([]VideoProvider, len(videoProviders))
	for i, p := range videoProviders {
		out[i] = VideoProvider{Name: p.Name, Params: append([]Param(nil), p.Params...)}
	}
	return out
}

// LookupVideoProvider 按名称查找视频 Provider
func LookupVideoProvider(name string) (VideoProvider, bool) {
	for _, p := range videoProviders {
		if p.Name == name {
			return VideoProvider{Name: p.Name, Params: append([]Param(nil), p.Params...)}, true
		}
	}
	return VideoProvider{}, false
}

// ProviderTemplate 返回 Provider 默认参数的新副本
func ProviderTemplate(name string) (Settings, error) {
	p, ok := LookupVideoProvider(name)
	if !ok {
		return nil, types.NewError(types.ErrValidation, fmt.Sprintf(MsgUnknownProvider, name))
	}
	return p.Template(), nil
}

// Template 返回默认参数
func (p VideoProvider) Template() Settings {
	s := make(Settings, len(p.Params))
	for _, param := range p.Params {
		s[param.Name] = param.Default
	}
	return s
}

// Param 按名称查找参数
func (p VideoProvider) Param(name string) (Param, bool) {
	for _, param := range p.Params {
		if param.Name == name {
			return param, true
		}
	}
	return Param{}, false
}

// Check 校验单个参数值
func (p Param) Check(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return types.NewError(types.ErrValidation, fmt.Sprintf("%s must be a number", p.Name))
	}
	if v < p.Min || v > p.Max {
		return types.NewError(types.ErrValidation,
			fmt.Sprintf("%s must be between %s and %s", p.Name, formatNumber(p.Min), formatNumber(p.Max)))
	}
	if p.Integer && v != math.Trunc(v) {
		return types.NewError(types.ErrValidation, fmt.Sprintf("%s must be a whole number", p.Name))
	}
	return nil
}

// =============================================================================
// Settings
// =============================================================================

// Settings 是 Provider 参数名到数值的映射
type Settings map[string]float64

// Clone 返回副本
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Keys 返回排序后的参数名
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String 以 k=v 形式输出
func (s Settings) String() string {
	parts := make([]string, 0, len(s))
	for _, k := range s.Keys() {
		parts = append(parts, k+"="+formatNumber(s[k]))
	}
	return strings.Join(parts, " ")
}

// Set 在边界内设置参数，未知参数与越界值会被拒绝
func (p VideoProvider) Set(s Settings, name string, v float64) error {
	param, ok := p.Param(name)
	if !ok {
		return types.NewError(types.ErrValidation, fmt.Sprintf("unknown setting %q for provider %s", name, p.Name))
	}
	if err := param.Check(v); err != nil {
		return err
	}
	s[name] = v
	return nil
}

// Validate 校验完整参数集
func (p VideoProvider) Validate(s Settings) error {
	for name, v := range s {
		param, ok := p.Param(name)
		if !ok {
			return types.NewError(types.ErrValidation, fmt.Sprintf("unknown setting %q for provider %s", name, p.Name))
		}
		if err := param.Check(v); err != nil {
			return err
		}
	}
	return nil
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

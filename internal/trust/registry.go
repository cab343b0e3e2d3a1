package trust

import "strings"

// Source 可信来源白名单条目
type Source struct {
	Name        string
	Domain      string
	IsVerified  bool
	TrustRating string // high / medium / low
}

// DefaultSources 返回启动时种子化的可信来源
func DefaultSources() []Source {
	return []Source{
		{Name: "Reuters", Domain: "reuters.com", IsVerified: true, TrustRating: "high"},
		{Name: "Associated Press", Domain: "apnews.com", IsVerified: true, TrustRating: "high"},
		{Name: "BBC News", Domain: "bbc.com", IsVerified: true, TrustRating: "high"},
		{Name: "NPR", Domain: "npr.org", IsVerified: true, TrustRating: "high"},
		{Name: "CNN", Domain: "cnn.com", IsVerified: true, TrustRating: "high"},
		{Name: "The Guardian", Domain: "theguardian.com", IsVerified: true, TrustRating: "high"},
	}
}

// Registry 按名称做大小写不敏感的包含匹配。
// 用包含而不是全等，是为了容忍提供方对同一来源的命名差异
// （例如 "CNN International" 也应命中 "CNN"）。
type Registry struct {
	names []string
}

func NewRegistry(sources []Source) *Registry {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		if !s.IsVerified {
			continue
		}
		if name := strings.ToLower(strings.TrimSpace(s.Name)); name != "" {
			names = append(names, name)
		}
	}
	return &Registry{names: names}
}

// IsVerified 判断清洗后的来源名是否命中白名单
func (r *Registry) IsVerified(source string) bool {
	s := strings.ToLower(strings.TrimSpace(source))
	if s == "" {
		return false
	}
	for _, name := range r.names {
		if strings.Contains(s, name) {
			return true
		}
	}
	return false
}

// =============================================================================
// profiles.go - 組み込みの企業語彙
// =============================================================================
//
// 設定ファイルなしで `run -s Reliance` と実行した場合でも、正式名・ティッカー・
// ブランド名・人物名でトピック一致を判定できるように、企業ごとの語彙を
// profiles/*.yaml として埋め込んでいます。
//
// 設定ファイルで canonical / aliases / brands / people のいずれかを指定した場合は
// そちらが優先され、組み込み語彙は使いません。
//
// =============================================================================
package pipeline

import (
	"embed"
	"sort"
	"strings"

	"github.com/Laisky/errors/v2"
	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var builtinProfileFS embed.FS

// BuiltinProfiles returns every embedded subject profile ordered by name.
func BuiltinProfiles() ([]SubjectProfile, error) {
	entries, err := builtinProfileFS.ReadDir("profiles")
	if err != nil {
		return nil, errors.Wrap(err, "read embedded profiles")
	}

	var out []SubjectProfile
	for _, e := range entries {
		data, err := builtinProfileFS.ReadFile("profiles/" + e.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "read embedded profile %s", e.Name())
		}
		var p SubjectProfile
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, errors.Wrapf(err, "parse embedded profile %s", e.Name())
		}
		if strings.TrimSpace(p.Name) == "" {
			return nil, errors.Errorf("embedded profile %s has no name", e.Name())
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// BuiltinProfile finds the embedded profile whose name or canonical name
// equals name, ignoring case.
func BuiltinProfile(name string) (SubjectProfile, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return SubjectProfile{}, false
	}
	all, err := BuiltinProfiles()
	if err != nil {
		return SubjectProfile{}, false
	}
	for _, p := range all {
		if strings.EqualFold(p.Name, name) || strings.EqualFold(p.Canonical, name) {
			return p, true
		}
	}
	return SubjectProfile{}, false
}

func (p SubjectProfile) hasVocabulary() bool {
	return p.Canonical != "" || len(p.Aliases) > 0 || len(p.Brands) > 0 || len(p.People) > 0
}

// WithBuiltinVocabulary fills canonical, aliases, brands and people from the
// embedded profile of the same name when p carries none of them.
// The name and keywords of p are kept.
func (p SubjectProfile) WithBuiltinVocabulary() SubjectProfile {
	if p.hasVocabulary() {
		return p
	}
	b, ok := BuiltinProfile(p.Name)
	if !ok {
		return p
	}
	b.Name = p.Name
	b.Keywords = append(b.Keywords, p.Keywords...)
	return b
}

package validators

import (
	"os"
	"path/filepath"
	"strings"
)

// DetectLanguages walks the generated file paths and returns the distinct
// languages present. TypeScript detection additionally requires
// tsconfig.json and package.json to exist in dir; Rust requires Cargo.toml.
func DetectLanguages(dir string, files []string) []Language {
	seen := map[Language]bool{}

	for _, f := range files {
		switch strings.ToLower(filepath.Ext(f)) {
		case ".ts", ".tsx":
			if fileExists(filepath.Join(dir, "tsconfig.json")) && fileExists(filepath.Join(dir, "package.json")) {
				seen[LangTypeScript] = true
			}
		case ".py":
			seen[LangPython] = true
		case ".js", ".jsx":
			seen[LangJavaScript] = true
		case ".go":
			seen[LangGo] = true
		case ".rs":
			if fileExists(filepath.Join(dir, "Cargo.toml")) {
				seen[LangRust] = true
			}
		case ".java":
			seen[LangJava] = true
		}
	}

	langs := make([]Language, 0, len(seen))
	for lang := range seen {
		langs = append(langs, lang)
	}
	return langs
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

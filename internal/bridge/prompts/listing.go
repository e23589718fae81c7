package prompts

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// describeDirectory renders a structured listing of one directory: a total
// count, entries grouped by extension, entries without an extension, and a
// numbered complete listing.
func describeDirectory(directory string) (string, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return "", fmt.Errorf("read directory %q: %w", directory, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Directory listing for: %s\n", directory)
	fmt.Fprintf(&sb, "Total files: %d\n\n", len(names))

	extensions := make(map[string][]string)
	var noExtension []string
	for _, name := range names {
		if i := strings.LastIndex(name, "."); i >= 0 {
			ext := strings.ToLower(name[i+1:])
			extensions[ext] = append(extensions[ext], name)
		} else {
			noExtension = append(noExtension, name)
		}
	}

	if len(extensions) > 0 {
		sb.WriteString("Files by type:\n")
		exts := make([]string, 0, len(extensions))
		for ext := range extensions {
			exts = append(exts, ext)
		}
		sort.Strings(exts)
		for _, ext := range exts {
			group := extensions[ext]
			fmt.Fprintf(&sb, "- %s files (%d): %s\n",
				strings.ToUpper(ext), len(group), strings.Join(group, ", "))
		}
	}

	if len(noExtension) > 0 {
		fmt.Fprintf(&sb, "\nFiles without extension (%d): %s\n",
			len(noExtension), strings.Join(noExtension, ", "))
	}

	sb.WriteString("\nComplete file listing:\n")
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	for i, name := range sorted {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, name)
	}

	return sb.String(), nil
}

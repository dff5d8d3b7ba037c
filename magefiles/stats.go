//go:build mage

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
)

// Stats prints Go lines of code per package and documentation word counts.
func Stats() error {
	prod := map[string]int{}
	test := map[string]int{}

	err := filepath.Walk(".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if path == "vendor" || path == ".git" || path == binaryDir || strings.HasPrefix(path, "_") {
				return filepath.SkipDir
			}
			return nil
		}
		// Skip magefiles, they are build tooling.
		if !strings.HasSuffix(path, ".go") || strings.HasPrefix(path, "magefiles") {
			return nil
		}
		count, countErr := countLines(path)
		if countErr != nil {
			return nil
		}
		pkg := filepath.Dir(path)
		if strings.HasSuffix(path, "_test.go") {
			test[pkg] += count
		} else {
			prod[pkg] += count
		}
		return nil
	})
	if err != nil {
		return err
	}

	var pkgs []string
	for pkg := range prod {
		pkgs = append(pkgs, pkg)
	}
	for pkg := range test {
		if _, ok := prod[pkg]; !ok {
			pkgs = append(pkgs, pkg)
		}
	}
	slices.Sort(pkgs)

	var prodTotal, testTotal int
	for _, pkg := range pkgs {
		fmt.Printf("%-28s %6d %6d\n", pkg, prod[pkg], test[pkg])
		prodTotal += prod[pkg]
		testTotal += test[pkg]
	}
	fmt.Printf("%-28s %6d %6d\n", "total", prodTotal, testTotal)

	words := 0
	for _, path := range []string{"README.md", "DESIGN.md", "SPEC_FULL.md"} {
		n, err := countWordsInFile(path)
		if err != nil {
			continue
		}
		words += n
	}
	fmt.Printf("Words (documentation): %d\n", words)
	return nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}

func countWordsInFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	count := 0
	inWord := false
	for _, r := range string(data) {
		if unicode.IsSpace(r) {
			inWord = false
		} else if !inWord {
			inWord = true
			count++
		}
	}
	return count, nil
}

package driver

import (
	"strconv"
	"strings"
)

// Scope restricts a search to the sub-tree under the first node matching
// its XPath step.
type Scope struct {
	Name string
	Step string
}

// XPath returns the absolute XPath of the scope's root.
func (s Scope) XPath() string {
	return "//body//" + s.Step
}

// Scopes of the editor, in its tab and modal layout.
var (
	BlocksTab   = Scope{Name: "blocks tab", Step: `*[@id='react-tabs-1']`}
	CostumesTab = Scope{Name: "costumes tab", Step: `*[@id='react-tabs-3']`}
	SoundsTab   = Scope{Name: "sounds tab", Step: `*[@id='react-tabs-5']`}
	Modal       = Scope{Name: "modal", Step: `*[@class="ReactModalPortal"]`}
	ReportTile  = Scope{Name: "report tile", Step: `*[@class="react-contextmenu-wrapper"]`}
	SpriteTile  = Scope{Name: "sprite tile", Step: `*[starts-with(@class,"react-contextmenu-wrapper")]`}
	MenuBar     = Scope{Name: "menu bar", Step: `*[contains(@class,"menu-bar_menu-bar_")]`}
)

// Scopes maps scope names, as used by scenario scripts, to scopes.
var Scopes = map[string]Scope{ //nolint:gochecknoglobals
	"blocksTab":   BlocksTab,
	"costumesTab": CostumesTab,
	"soundsTab":   SoundsTab,
	"modal":       Modal,
	"reportTile":  ReportTile,
	"spriteTile":  SpriteTile,
	"menuBar":     MenuBar,
}

type locatorKind int

const (
	byXPath locatorKind = iota
	byText
)

// Locator identifies zero or more DOM nodes, by text or by XPath.
type Locator struct {
	kind  locatorKind
	value string
	scope *Scope
}

// ByText locates the innermost elements whose text content equals text.
// Whitespace is normalized on both sides, so text split across child
// nodes or padded by markup still matches.
func ByText(text string) Locator {
	return Locator{kind: byText, value: text}
}

// ByXPath locates elements matching xpath.
func ByXPath(xpath string) Locator {
	return Locator{kind: byXPath, value: xpath}
}

// Within returns a copy of l restricted to scope.
func (l Locator) Within(scope Scope) Locator {
	l.scope = &scope
	return l
}

// within applies the first of scopes, if any.
func (l Locator) within(scopes []Scope) Locator {
	if len(scopes) == 0 {
		return l
	}
	return l.Within(scopes[0])
}

// Compile returns the XPath to query and the XPath of the node it is
// relative to, which is empty for absolute queries.
//
// Text locators are absolute: the scope becomes a step of the query.
// XPath locators are evaluated relative to the scope's root, so a
// leading "//" is made relative.
func (l Locator) Compile() (xpath, scope string) {
	switch l.kind {
	case byText:
		step := "*"
		if l.scope != nil {
			step = l.scope.Step
		}
		return "//body//" + step + "//*" + textPredicate(l.value), ""
	default:
		if l.scope == nil {
			return l.value, ""
		}
		xp := l.value
		if strings.HasPrefix(xp, "//") {
			xp = "." + xp
		}
		return xp, l.scope.XPath()
	}
}

func (l Locator) String() string {
	var s string
	if l.kind == byText {
		s = "text " + strconv.Quote(l.value)
	} else {
		s = strconv.Quote(l.value)
	}
	if l.scope != nil {
		s += " in " + l.scope.Name
	}
	return s
}

// textPredicate matches elements whose normalized text content is text
// and that have no child element matching too.
func textPredicate(text string) string {
	cond := "normalize-space(.)=" + xpathLiteral(strings.Join(strings.Fields(text), " "))
	return "[" + cond + "][not(*[" + cond + "])]"
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no
// escapes, so a string holding both quote kinds is built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}

	parts := strings.Split(s, `"`)
	args := make([]string, 0, 2*len(parts)-1)
	for i, p := range parts {
		if i > 0 {
			args = append(args, `'"'`)
		}
		if p != "" {
			args = append(args, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(args, ", ") + ")"
}

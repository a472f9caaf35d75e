package sanitizer

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

// Markup added to every image and to the document head
const (
	ImageClass        = "slide-image"
	ImageStyle        = "max-width:100%;max-height:70vh;object-fit:contain;"
	StyleElementID    = "deckforge-image-style"
	UnverifiedAttr    = "data-unverified-src"
	imageStyleSheet   = ".slide-image{max-width:100%;max-height:70vh;object-fit:contain;display:block;margin:0 auto;}"
	unverifiedMarking = "true"
)

// DefaultSuspectDomains host stock and encyclopedia images that models tend to invent URLs for
var DefaultSuspectDomains = []string{
	"pixabay.com",
	"wikimedia.org",
	"wikipedia.org",
	"unsplash.com",
	"pexels.com",
	"shutterstock.com",
	"istockphoto.com",
	"gettyimages.com",
}

var (
	documentPattern      = regexp.MustCompile(`(?i)<(html|head|body)[\s>]`)
	// Destinations may hold one level of balanced parentheses, as in Wikimedia file names
	markdownImagePattern = regexp.MustCompile(`!\[([^\]\n]*)\]\(\s*((?:[^\s()]|\([^\s()]*\))+)(?:\s+"([^"\n]*)")?\s*\)`)
)

// protectedElements keep their text verbatim
var protectedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Pre:      true,
	atom.Code:     true,
	atom.Textarea: true,
	atom.Title:    true,
}

// Options configures the sanitizer
type Options struct {
	Policy         entities.SanitizerPolicy
	SuspectDomains []string
}

// Sanitizer rewrites image references in generated presentation markup
type Sanitizer struct {
	policy  entities.SanitizerPolicy
	suspect []string
	md      goldmark.Markdown
}

// New creates a new sanitizer
func New(opts Options) *Sanitizer {
	policy := opts.Policy
	if policy == "" {
		policy = entities.SanitizerPolicyReplace
	}

	suspect := make([]string, 0, len(DefaultSuspectDomains)+len(opts.SuspectDomains))
	suspect = append(suspect, DefaultSuspectDomains...)
	for _, d := range opts.SuspectDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			suspect = append(suspect, d)
		}
	}

	return &Sanitizer{
		policy:  policy,
		suspect: suspect,
		md:      goldmark.New(),
	}
}

// run carries the state of one Sanitize call
type run struct {
	valid  []string
	set    map[string]bool
	cursor int
	report ports.SanitizeReport
}

// Sanitize converts markdown images, normalizes every <img> and resolves unverified
// sources against validURLs. Running it again on its output with the same validURLs
// changes nothing.
func (s *Sanitizer) Sanitize(markup string, validURLs []string) (string, ports.SanitizeReport) {
	r := &run{set: make(map[string]bool, len(validURLs))}
	for _, u := range validURLs {
		if u = strings.TrimSpace(u); u != "" && !r.set[u] {
			r.set[u] = true
			r.valid = append(r.valid, u)
		}
	}

	isDocument := documentPattern.MatchString(markup)
	root, err := parse(markup, isDocument)
	if err != nil {
		return markup, r.report
	}

	s.convertMarkdownImages(root, r)

	for _, img := range findAll(root, atom.Img) {
		r.report.ImagesSeen++
		addClass(img, ImageClass)
		ensureStyle(img)
		s.resolveSource(img, r)
	}

	if isDocument {
		if head := findFirst(root, atom.Head); head != nil && !hasStyleBlock(root) {
			head.AppendChild(styleBlock())
			r.report.StyleInjected = true
		}
	}

	return render(root, isDocument), r.report
}

func parse(markup string, isDocument bool) (*html.Node, error) {
	if isDocument {
		return html.Parse(strings.NewReader(markup))
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	return body, nil
}

func render(root *html.Node, isDocument bool) string {
	var buf bytes.Buffer
	if isDocument {
		_ = html.Render(&buf, root)
		return buf.String()
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

func (s *Sanitizer) convertMarkdownImages(root *html.Node, r *run) {
	var texts []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && protectedElements[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode && strings.Contains(n.Data, "![") {
			texts = append(texts, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	for _, text := range texts {
		r.report.MarkdownConverted += s.expandText(text)
	}
}

// expandText splits a text node around markdown images and returns the number converted
func (s *Sanitizer) expandText(text *html.Node) int {
	matches := markdownImagePattern.FindAllStringIndex(text.Data, -1)
	if len(matches) == 0 || text.Parent == nil {
		return 0
	}

	parent := text.Parent
	data := text.Data
	converted := 0
	last := 0
	for _, m := range matches {
		img := s.renderMarkdownImage(data[m[0]:m[1]])
		if img == nil {
			continue
		}
		if m[0] > last {
			parent.InsertBefore(&html.Node{Type: html.TextNode, Data: data[last:m[0]]}, text)
		}
		parent.InsertBefore(img, text)
		last = m[1]
		converted++
	}

	if converted == 0 {
		return 0
	}
	if last < len(data) {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: data[last:]}, text)
	}
	parent.RemoveChild(text)
	return converted
}

// renderMarkdownImage renders a single markdown image and returns the detached <img>
func (s *Sanitizer) renderMarkdownImage(source string) *html.Node {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(source), &buf); err != nil {
		return nil
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(&buf, body)
	if err != nil {
		return nil
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			return n
		}
		if img := findFirst(n, atom.Img); img != nil {
			img.Parent.RemoveChild(img)
			return img
		}
	}
	return nil
}

func (s *Sanitizer) resolveSource(img *html.Node, r *run) {
	src := strings.TrimSpace(getAttr(img, "src"))
	if r.set[src] || strings.HasPrefix(strings.ToLower(src), "data:") {
		return
	}

	if len(r.valid) > 0 {
		if s.policy == entities.SanitizerPolicyFlag {
			setAttr(img, UnverifiedAttr, unverifiedMarking)
			r.report.Flagged++
			return
		}

		setAttr(img, "src", r.valid[r.cursor%len(r.valid)])
		removeAttr(img, "srcset")
		removeAttr(img, UnverifiedAttr)
		r.cursor++
		r.report.Replaced++
		return
	}

	if s.isSuspect(src) {
		setAttr(img, UnverifiedAttr, unverifiedMarking)
		r.report.Flagged++
	}
}

func (s *Sanitizer) isSuspect(src string) bool {
	u, err := url.Parse(src)
	if err != nil || u.Host == "" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	for _, domain := range s.suspect {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func addClass(n *html.Node, class string) {
	existing := getAttr(n, "class")
	for _, c := range strings.Fields(existing) {
		if c == class {
			return
		}
	}
	if existing = strings.TrimSpace(existing); existing != "" {
		setAttr(n, "class", existing+" "+class)
		return
	}
	setAttr(n, "class", class)
}

func ensureStyle(n *html.Node) {
	existing := strings.TrimSpace(getAttr(n, "style"))
	if strings.Contains(existing, ImageStyle) {
		return
	}
	setAttr(n, "style", ImageStyle+existing)
}

func hasStyleBlock(root *html.Node) bool {
	for _, style := range findAll(root, atom.Style) {
		if getAttr(style, "id") == StyleElementID {
			return true
		}
	}
	return false
}

func styleBlock() *html.Node {
	style := &html.Node{
		Type:     html.ElementNode,
		Data:     "style",
		DataAtom: atom.Style,
		Attr:     []html.Attribute{{Key: "id", Val: StyleElementID}},
	}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: imageStyleSheet})
	return style
}

func findAll(root *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func findFirst(root *html.Node, a atom.Atom) *html.Node {
	if root.Type == html.ElementNode && root.DataAtom == a {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			attrs = append(attrs, a)
		}
	}
	n.Attr = attrs
}

package cdpdesk

import (
	"strings"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// roleControlTypes maps ARIA / Chromium AX roles onto desktop control types.
// Roles missing here keep their own (capitalized) name.
var roleControlTypes = map[string]string{
	"button":           "Button",
	"togglebutton":     "Button",
	"popupbutton":      "SplitButton",
	"link":             "Hyperlink",
	"textbox":          "Edit",
	"searchbox":        "Edit",
	"textfield":        "Edit",
	"combobox":         "ComboBox",
	"listbox":          "List",
	"list":             "List",
	"listitem":         "ListItem",
	"option":           "ListItem",
	"checkbox":         "CheckBox",
	"switch":           "CheckBox",
	"radio":            "RadioButton",
	"menu":             "Menu",
	"menubar":          "MenuBar",
	"menuitem":         "MenuItem",
	"menuitemcheckbox": "MenuItem",
	"menuitemradio":    "MenuItem",
	"tab":              "TabItem",
	"tablist":          "Tab",
	"tree":             "Tree",
	"treeitem":         "TreeItem",
	"table":            "Table",
	"grid":             "DataGrid",
	"img":              "Image",
	"image":            "Image",
	"slider":           "Slider",
	"spinbutton":       "Spinner",
	"scrollbar":        "ScrollBar",
	"toolbar":          "ToolBar",
	"status":           "StatusBar",
	"progressbar":      "ProgressBar",
	"separator":        "Separator",
	"dialog":           "Window",
	"alertdialog":      "Window",
	"group":            "Group",
	"region":           "Group",
	"heading":          "Header",
	"rootwebarea":      "Document",
	"document":         "Document",
	"article":          "Document",
	"statictext":       "Text",
	"paragraph":        "Text",
	"labeltext":        "Text",
	// Structural noise that never carries a target of its own.
	"generic":          "",
	"none":             "",
	"presentation":     "",
	"inlinetextbox":    "",
	"linebreak":        "",
	"ignored":          "",
}

// controlType translates an AX role.
func controlType(role string) string {
	key := strings.ToLower(role)
	if ct, ok := roleControlTypes[key]; ok {
		return ct
	}
	if role == "" {
		return ""
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

// axNode is the subset of an AX node the backend needs.
type axNode struct {
	id       string
	parent   string
	children []string
	role     string
	name     string
	ignored  bool
	disabled bool
	hidden   bool
	backend  cdp.BackendNodeID
}

func convertNode(n *accessibility.Node) axNode {
	out := axNode{
		id:      string(n.NodeID),
		parent:  string(n.ParentID),
		role:    axString(n.Role),
		name:    axString(n.Name),
		ignored: n.Ignored,
		backend: n.BackendDOMNodeID,
	}
	for _, c := range n.ChildIDs {
		out.children = append(out.children, string(c))
	}
	for _, p := range n.Properties {
		switch string(p.Name) {
		case "disabled":
			out.disabled = axBool(p.Value)
		case "hidden":
			out.hidden = axBool(p.Value)
		}
	}
	return out
}

func axString(v *accessibility.Value) string {
	if v == nil || len(v.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(v.Value), &s); err != nil {
		return ""
	}
	return s
}

func axBool(v *accessibility.Value) bool {
	if v == nil || len(v.Value) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal([]byte(v.Value), &b); err != nil {
		return false
	}
	return b
}

// preorder returns nodes in depth-first document order, starting from every
// root. Nodes unreachable from a root are appended in their original order.
func preorder(nodes []axNode) []axNode {
	byID := make(map[string]int, len(nodes))
	for i, n := range nodes {
		byID[n.id] = i
	}

	out := make([]axNode, 0, len(nodes))
	visited := make(map[string]bool, len(nodes))
	var walk func(id string)
	walk = func(id string) {
		i, ok := byID[id]
		if !ok || visited[id] {
			return
		}
		visited[id] = true
		out = append(out, nodes[i])
		for _, c := range nodes[i].children {
			walk(c)
		}
	}

	for _, n := range nodes {
		if _, hasParent := byID[n.parent]; n.parent == "" || !hasParent {
			walk(n.id)
		}
	}
	for _, n := range nodes {
		if !visited[n.id] {
			out = append(out, n)
			visited[n.id] = true
		}
	}
	return out
}

// quadBounds folds a CSS quad (x1,y1 .. x4,y4) into its bounding box.
func quadBounds(q []float64) (left, top, right, bottom float64, ok bool) {
	if len(q) < 8 {
		return 0, 0, 0, 0, false
	}
	left, top, right, bottom = q[0], q[1], q[0], q[1]
	for i := 2; i+1 < len(q); i += 2 {
		left = min(left, q[i])
		right = max(right, q[i])
		top = min(top, q[i+1])
		bottom = max(bottom, q[i+1])
	}
	return left, top, right, bottom, true
}

package graph

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"

	"freightcraft.ai/internal/sim/model"
)

// GraphML exchange. Node coordinates ride as double attributes, the building
// payload as a JSON attribute blob, edges carry length and mode. Undirected
// maps (edgedefault="undirected") expand into two directed edges on load.

const graphmlNS = "http://graphml.graphdrawing.org/xmlns"

type xmlGraphML struct {
	XMLName xml.Name `xml:"graphml"`
	Xmlns   string   `xml:"xmlns,attr"`
	Keys    []xmlKey `xml:"key"`
	Graph   xmlGraph `xml:"graph"`
}

type xmlKey struct {
	ID       string `xml:"id,attr"`
	For      string `xml:"for,attr"`
	AttrName string `xml:"attr.name,attr"`
	AttrType string `xml:"attr.type,attr"`
}

type xmlGraph struct {
	ID          string    `xml:"id,attr"`
	EdgeDefault string    `xml:"edgedefault,attr"`
	Nodes       []xmlNode `xml:"node"`
	Edges       []xmlEdge `xml:"edge"`
}

type xmlNode struct {
	ID   string    `xml:"id,attr"`
	Data []xmlData `xml:"data"`
}

type xmlEdge struct {
	Source string    `xml:"source,attr"`
	Target string    `xml:"target,attr"`
	Data   []xmlData `xml:"data"`
}

type xmlData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// ReadGraphML parses a GraphML document into a validated Graph.
func ReadGraphML(r io.Reader) (*Graph, error) {
	var doc xmlGraphML
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("graphml: decode: %w", err)
	}

	// Resolve key ids by attribute name and scope.
	keyID := map[string]string{}
	for _, k := range doc.Keys {
		keyID[k.For+"/"+k.AttrName] = k.ID
	}
	attr := func(data []xmlData, id string) (string, bool) {
		if id == "" {
			return "", false
		}
		for _, d := range data {
			if d.Key == id {
				return d.Value, true
			}
		}
		return "", false
	}

	g := New()
	nodeX := keyID["node/x"]
	nodeY := keyID["node/y"]
	nodeBuilding := keyID["node/building"]
	edgeLength := keyID["edge/length"]
	edgeMode := keyID["edge/mode"]

	for _, xn := range doc.Graph.Nodes {
		n := Node{ID: model.NodeID(xn.ID)}
		if v, ok := attr(xn.Data, nodeX); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("graphml: node %s x: %w", xn.ID, err)
			}
			n.X = f
		}
		if v, ok := attr(xn.Data, nodeY); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("graphml: node %s y: %w", xn.ID, err)
			}
			n.Y = f
		}
		if v, ok := attr(xn.Data, nodeBuilding); ok && v != "" {
			var b Building
			if err := json.Unmarshal([]byte(v), &b); err != nil {
				return nil, fmt.Errorf("graphml: node %s building blob: %w", xn.ID, err)
			}
			n.Building = &b
		}
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}

	undirected := doc.Graph.EdgeDefault != "directed"
	for _, xe := range doc.Graph.Edges {
		e := Edge{From: model.NodeID(xe.Source), To: model.NodeID(xe.Target), Mode: ModeRoad}
		if v, ok := attr(xe.Data, edgeLength); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("graphml: edge %s-%s length: %w", xe.Source, xe.Target, err)
			}
			e.Length = f
		}
		if v, ok := attr(xe.Data, edgeMode); ok && v != "" {
			e.Mode = v
		}
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}
		if undirected {
			rev := e
			rev.From, rev.To = e.To, e.From
			if err := g.AddEdge(rev); err != nil {
				return nil, err
			}
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// WriteGraphML emits the graph as a directed GraphML document with stable key
// ids, nodes in insertion order, and each node's edges sorted by target.
func WriteGraphML(w io.Writer, g *Graph) error {
	doc := xmlGraphML{
		Xmlns: graphmlNS,
		Keys: []xmlKey{
			{ID: "d0", For: "node", AttrName: "x", AttrType: "double"},
			{ID: "d1", For: "node", AttrName: "y", AttrType: "double"},
			{ID: "d2", For: "node", AttrName: "building", AttrType: "string"},
			{ID: "d3", For: "edge", AttrName: "length", AttrType: "double"},
			{ID: "d4", For: "edge", AttrName: "mode", AttrType: "string"},
		},
		Graph: xmlGraph{ID: "city", EdgeDefault: "directed"},
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, n := range g.Nodes() {
		xn := xmlNode{
			ID: string(n.ID),
			Data: []xmlData{
				{Key: "d0", Value: f(n.X)},
				{Key: "d1", Value: f(n.Y)},
			},
		}
		if n.Building != nil {
			blob, err := json.Marshal(n.Building)
			if err != nil {
				return fmt.Errorf("graphml: node %s building blob: %w", n.ID, err)
			}
			xn.Data = append(xn.Data, xmlData{Key: "d2", Value: string(blob)})
		}
		doc.Graph.Nodes = append(doc.Graph.Nodes, xn)
		for _, e := range g.Out(n.ID) {
			doc.Graph.Edges = append(doc.Graph.Edges, xmlEdge{
				Source: string(e.From),
				Target: string(e.To),
				Data: []xmlData{
					{Key: "d3", Value: f(e.Length)},
					{Key: "d4", Value: e.Mode},
				},
			})
		}
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("graphml: encode: %w", err)
	}
	return enc.Close()
}

// LoadGraphMLFile reads and validates a .graphml file from disk.
func LoadGraphMLFile(path string) (*Graph, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	g, err := ReadGraphML(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

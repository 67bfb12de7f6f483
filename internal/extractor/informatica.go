package extractor

import (
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/vitebski/purview-catalog-tools/internal/tabular"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
	"golang.org/x/text/encoding/charmap"
)

// Connection is the server behind an Informatica connection name
type Connection struct {
	Server   string
	Database string
}

// ConnectionUse records a session instance writing through a connection
type ConnectionUse struct {
	Connection string
	Instance   string
}

// InformaticaExport is what a workflow XML export says about data movement
type InformaticaExport struct {
	Sources []models.ParsedReference
	Uses    []ConnectionUse
}

// slbaConnections always point at the SLBA schema on oakdwhp1
var slbaConnections = map[string]bool{"slbadw": true, "slba": true, "slbadw_prd": true}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// ParseInformatica reads SOURCE/TARGET definitions directly under FOLDER and
// the connection references of every session extension
func ParseInformatica(r io.Reader) (*InformaticaExport, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.CharsetReader = charsetReader

	export := &InformaticaExport{}
	var stack []string
	instance := ""

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "decoding informatica export")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			switch {
			case (name == "SOURCE" || name == "TARGET") && parent == "FOLDER":
				export.Sources = append(export.Sources, models.ParsedReference{
					Server: attr(t, "DBDNAME"),
					Schema: attr(t, "OWNERNAME"),
					Table:  attr(t, "NAME"),
				})
			case name == "SESSIONEXTENSION" && inside(stack, "SESSION"):
				instance = attr(t, "SINSTANCENAME")
			case name == "CONNECTIONREFERENCE" && inside(stack, "SESSIONEXTENSION"):
				if conn := attr(t, "CONNECTIONNAME"); conn != "" {
					export.Uses = append(export.Uses, ConnectionUse{Connection: conn, Instance: instance})
				}
			}
			stack = append(stack, name)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return export, nil
}

// charsetReader decodes the single-byte code pages PowerCenter declares in
// its exports
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	}
	return nil, errors.Errorf("unsupported charset %q", label)
}

func inside(stack []string, name string) bool {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == name {
			return true
		}
	}
	return false
}

// ParseInformaticaFile opens and parses an export file
func ParseInformaticaFile(path string) (*InformaticaExport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return ParseInformatica(f)
}

// LoadConnections reads the connection sheet ("Connection Name", "Server
// name", "Database name")
func LoadConnections(path string) (map[string]Connection, error) {
	tbl, err := tabular.Read(path, tabular.Options{})
	if err != nil {
		return nil, err
	}
	if err := tbl.Require("Connection Name", "Server name", "Database name"); err != nil {
		return nil, err
	}
	conns := make(map[string]Connection, len(tbl.Rows))
	for _, row := range tbl.Rows {
		conns[row.Get("Connection Name")] = Connection{
			Server:   row.Get("Server name"),
			Database: row.Get("Database name"),
		}
	}
	return conns, nil
}

// Targets maps each session instance onto the server of its connection.
// Connections that are neither listed nor SLBA are ignored.
func (e *InformaticaExport) Targets(conns map[string]Connection) []models.ParsedReference {
	var out []models.ParsedReference
	for _, use := range e.Uses {
		if c, ok := conns[use.Connection]; ok {
			out = append(out, models.ParsedReference{Server: c.Server, Schema: c.Database, Table: use.Instance})
			continue
		}
		if slbaConnections[strings.ToLower(use.Connection)] {
			out = append(out, models.ParsedReference{Server: "oakdwhp1", Schema: "SLBA", Table: use.Instance})
		}
	}
	return out
}

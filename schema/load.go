package schema

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// The YAML schema document mirrors the descriptor model one-to-one:
//
//	tables:
//	  - name: User
//	    columns:
//	      - name: id
//	        auto_increment: true
//	      - name: email
//	        optional: true
//	      - name: token
//	        generator: uuid
//	    primary_key: [id]
//	    unique_indexes:
//	      - [email]
//	  - name: Address
//	    columns:
//	      - name: id
//	        auto_increment: true
//	      - name: user_id
//	    primary_key: [id]
//	    foreign_keys:
//	      - columns: [user_id]
//	        references: User
//	        remote_columns: [id]
//	        backref: addresses
type schemaDoc struct {
	Tables []tableDoc `yaml:"tables"`
}

type tableDoc struct {
	Name          string        `yaml:"name"`
	Columns       []columnDoc   `yaml:"columns"`
	PrimaryKey    []string      `yaml:"primary_key"`
	UniqueIndexes [][]string    `yaml:"unique_indexes"`
	ForeignKeys   []fkDoc       `yaml:"foreign_keys"`
	Relations     []relationDoc `yaml:"relations"`
}

type columnDoc struct {
	Name          string `yaml:"name"`
	Optional      bool   `yaml:"optional"`
	AutoIncrement bool   `yaml:"auto_increment"`
	Default       any    `yaml:"default"`
	Generator     string `yaml:"generator"`
}

type fkDoc struct {
	Columns       []string `yaml:"columns"`
	References    string   `yaml:"references"`
	RemoteColumns []string `yaml:"remote_columns"`
	Backref       string   `yaml:"backref"`
}

type relationDoc struct {
	Name    string   `yaml:"name"`
	Target  string   `yaml:"target"`
	Many    bool     `yaml:"many"`
	Mapping []mapDoc `yaml:"mapping"`
}

type mapDoc struct {
	Local  string `yaml:"local"`
	Remote string `yaml:"remote"`
}

// Load reads a YAML schema document and returns a finalized Registry.
func Load(r io.Reader) (*Registry, error) {
	var doc schemaDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	tables := make([]*Table, 0, len(doc.Tables))
	byName := make(map[string]*Table, len(doc.Tables))
	for _, td := range doc.Tables {
		t, err := buildTable(td)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
		byName[t.Name] = t
	}
	// Foreign keys that omit remote_columns default to the remote table's
	// primary key.
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			if len(fk.RemoteColumns) > 0 {
				continue
			}
			remote, ok := byName[fk.RemoteTable]
			if !ok {
				return nil, fmt.Errorf("schema: table %q foreign key targets unknown table %q", t.Name, fk.RemoteTable)
			}
			fk.RemoteColumns = append([]string(nil), remote.PrimaryKey...)
		}
	}
	reg := NewRegistry()
	if err := reg.Add(tables...); err != nil {
		return nil, err
	}
	if err := reg.Finalize(); err != nil {
		return nil, err
	}
	return reg, nil
}

// LoadFile reads a YAML schema file and returns a finalized Registry.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func buildTable(td tableDoc) (*Table, error) {
	t := &Table{
		Name:          td.Name,
		PrimaryKey:    td.PrimaryKey,
		UniqueIndexes: td.UniqueIndexes,
	}
	for _, cd := range td.Columns {
		col := &Column{
			Name:          cd.Name,
			Optional:      cd.Optional,
			AutoIncrement: cd.AutoIncrement,
			Default:       cd.Default,
		}
		if cd.Generator != "" {
			gen, err := generator(cd.Generator)
			if err != nil {
				return nil, fmt.Errorf("schema: table %q column %q: %w", td.Name, cd.Name, err)
			}
			col.DefaultFunc = gen
		}
		t.Columns = append(t.Columns, col)
	}
	for _, fd := range td.ForeignKeys {
		t.ForeignKeys = append(t.ForeignKeys, &ForeignKey{
			Columns:       fd.Columns,
			RemoteTable:   fd.References,
			RemoteColumns: fd.RemoteColumns,
			Backref:       fd.Backref,
		})
	}
	for _, rd := range td.Relations {
		rel := &Relation{
			Name:   rd.Name,
			Target: rd.Target,
			Unique: !rd.Many,
		}
		for _, m := range rd.Mapping {
			rel.Mapping = append(rel.Mapping, MapPair{Local: m.Local, Remote: m.Remote})
		}
		t.Relations = append(t.Relations, rel)
	}
	return t, nil
}

// generator resolves a named default-value generator.
func generator(name string) (func() any, error) {
	switch name {
	case "uuid":
		return func() any { return uuid.NewString() }, nil
	case "now":
		return func() any { return time.Now().UTC() }, nil
	default:
		return nil, fmt.Errorf("unknown generator %q", name)
	}
}

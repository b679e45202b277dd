/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/slices"

	"github.com/wyd20162016/ARTIST/dex"
	"github.com/wyd20162016/ARTIST/oat"
	"github.com/wyd20162016/ARTIST/objfile"
)

// Query selects what main_impl extracts from a file.
type Query struct {
	Base   uint64
	Offset int

	Scan     bool
	DexFiles bool
	Classes  bool
	Methods  bool

	Dex       string
	Class     string
	Method    string
	Signature string
	Disasm    int
}

type FileMetadata struct {
	Name        string
	Kind        string
	Begin       uint64
	ImageOffset int
	ImageSize   int
}

type HeaderMetadata struct {
	Magic                                 string
	Version                               string
	Checksum                              uint32
	InstructionSet                        string
	InstructionSetFeatures                uint32
	DexFileCount                          uint32
	ExecutableOffset                      uint32
	InterpreterToInterpreterBridgeOffset  uint32
	InterpreterToCompiledCodeBridgeOffset uint32
	JniDlsymLookupOffset                  uint32
	PortableImtConflictTrampolineOffset   uint32
	PortableResolutionTrampolineOffset    uint32
	PortableToInterpreterBridgeOffset     uint32
	QuickGenericJniTrampolineOffset       uint32
	QuickImtConflictTrampolineOffset      uint32
	QuickResolutionTrampolineOffset       uint32
	QuickToInterpreterBridgeOffset        uint32
	ImagePatchDelta                       int32
	ImageFileLocationOatChecksum          uint32
	ImageFileLocationOatDataBegin         uint32
	KeyValueStoreSize                     uint32
}

type KeyValue struct {
	Key   string
	Value string
}

type DexFileMetadata struct {
	Index            uint32
	Location         string
	LocationChecksum uint32
	DexFileOffset    uint32
	DexVA            uint64
	DexSize          int
	ClassDefs        uint32
	Classes          []ClassMetadata `json:",omitempty"`
}

type ClassMetadata struct {
	Index           uint32
	Descriptor      string
	Name            string
	Superclass      string
	Status          string
	Type            string
	Offset          uint32
	CompiledMethods int
	Methods         []MethodMetadata `json:",omitempty"`
}

type MethodMetadata struct {
	DexLocation      string
	Class            string
	Name             string
	Signature        string
	AccessFlags      string `json:",omitempty"`
	ClassMethodIndex uint32
	Compiled         bool
	CodeOffset       uint32
	GcMapOffset      uint32
	EntryPoint       uint64
	CodePointer      uint64
	FrameSize        uint32
	CoreSpillMask    uint32
	FpSpillMask      uint32
	CodeSize         uint32
	Disassembly      []string `json:",omitempty"`
}

type ExtractMetadata struct {
	File       FileMetadata
	Header     HeaderMetadata
	KeyValues  []KeyValue
	Candidates []oat.HeaderCandidate `json:",omitempty"`
	DexFiles   []DexFileMetadata     `json:",omitempty"`
	Methods    []MethodMetadata      `json:",omitempty"`
}

func main_impl(fileName string, q Query) (metadata ExtractMetadata, err error) {
	extractMetadata := ExtractMetadata{}
	log := logrus.StandardLogger()

	if q.Scan {
		// a scan reports every signature, so it must not stop at the first
		// supported one the way objfile does
		data, release, err := objfile.Map(fileName)
		if err != nil {
			return ExtractMetadata{}, errors.Wrap(err, "invalid file")
		}
		defer release()
		extractMetadata.File = FileMetadata{Name: fileName, Kind: objfile.KindRaw.String(), ImageOffset: -1}
		extractMetadata.Candidates = oat.FindHeaders(data)
		return extractMetadata, nil
	}

	opts := []objfile.Option{objfile.WithLogger(log), objfile.WithOffset(q.Offset)}
	if q.Base != 0 {
		opts = append(opts, objfile.WithBase(q.Base))
	}
	file, err := objfile.Open(fileName, opts...)
	if err != nil {
		return ExtractMetadata{}, errors.Wrap(err, "invalid file")
	}
	defer file.Close()

	extractMetadata.File = FileMetadata{
		Name:        fileName,
		Kind:        file.Kind().String(),
		Begin:       uint64(file.Begin()),
		ImageOffset: file.ImageOffset(),
		ImageSize:   len(file.ImageBytes()),
	}
	extractMetadata.Candidates = file.Candidates()

	img, err := file.Image(oat.WithLogger(log))
	if err != nil {
		return ExtractMetadata{}, err
	}
	extractMetadata.Header = headerMetadata(img.Header())

	kv, err := img.KeyValueStore()
	if err != nil {
		log.WithError(err).Warn("key-value store is malformed")
	} else {
		for _, k := range kv.Keys() {
			v, _ := kv.Get(k)
			extractMetadata.KeyValues = append(extractMetadata.KeyValues, KeyValue{Key: k.(string), Value: v.(string)})
		}
	}

	if q.DexFiles || q.Classes {
		dexFiles, err := img.AllDexFiles()
		if err != nil {
			return ExtractMetadata{}, err
		}
		for _, df := range dexFiles {
			if q.Dex != "" && df.Location() != q.Dex {
				continue
			}
			dfm := DexFileMetadata{
				Index:            df.Index(),
				Location:         df.Location(),
				LocationChecksum: df.LocationChecksum(),
				DexFileOffset:    df.DexFileOffset(),
				DexVA:            uint64(df.DexAddr()),
				DexSize:          len(df.DexBytes()),
				ClassDefs:        df.NumClassDefs(),
			}
			if q.Classes {
				if dfm.Classes, err = classesMetadata(df, q.Methods, q.Disasm); err != nil {
					return ExtractMetadata{}, err
				}
			}
			extractMetadata.DexFiles = append(extractMetadata.DexFiles, dfm)
		}
	}

	if q.Class != "" {
		var df *oat.DexFile
		var class *oat.Class
		if q.Dex != "" {
			if df, err = img.FindDexFile(q.Dex); err == nil {
				class, err = df.FindClass(q.Class)
			}
		} else {
			df, class, err = img.FindClass(q.Class)
		}
		if err != nil {
			return ExtractMetadata{}, err
		}

		m, err := class.FindMethod(q.Method, q.Signature)
		if err != nil {
			return ExtractMetadata{}, err
		}
		mm, err := methodMetadata(m, q.Disasm)
		if err != nil {
			return ExtractMetadata{}, err
		}
		mm.DexLocation = df.Location()
		extractMetadata.Methods = append(extractMetadata.Methods, mm)
	}

	return extractMetadata, nil
}

func headerMetadata(h oat.Header) HeaderMetadata {
	return HeaderMetadata{
		Magic:                                 strings.TrimSpace(h.Magic()),
		Version:                               h.Version(),
		Checksum:                              h.Checksum(),
		InstructionSet:                        h.InstructionSet().String(),
		InstructionSetFeatures:                h.InstructionSetFeatures(),
		DexFileCount:                          h.DexFileCount(),
		ExecutableOffset:                      h.ExecutableOffset(),
		InterpreterToInterpreterBridgeOffset:  h.InterpreterToInterpreterBridgeOffset(),
		InterpreterToCompiledCodeBridgeOffset: h.InterpreterToCompiledCodeBridgeOffset(),
		JniDlsymLookupOffset:                  h.JniDlsymLookupOffset(),
		PortableImtConflictTrampolineOffset:   h.PortableImtConflictTrampolineOffset(),
		PortableResolutionTrampolineOffset:    h.PortableResolutionTrampolineOffset(),
		PortableToInterpreterBridgeOffset:     h.PortableToInterpreterBridgeOffset(),
		QuickGenericJniTrampolineOffset:       h.QuickGenericJniTrampolineOffset(),
		QuickImtConflictTrampolineOffset:      h.QuickImtConflictTrampolineOffset(),
		QuickResolutionTrampolineOffset:       h.QuickResolutionTrampolineOffset(),
		QuickToInterpreterBridgeOffset:        h.QuickToInterpreterBridgeOffset(),
		ImagePatchDelta:                       h.ImagePatchDelta(),
		ImageFileLocationOatChecksum:          h.ImageFileLocationOatChecksum(),
		ImageFileLocationOatDataBegin:         h.ImageFileLocationOatDataBegin(),
		KeyValueStoreSize:                     h.KeyValueStoreSize(),
	}
}

func classesMetadata(df *oat.DexFile, withMethods bool, disasm int) ([]ClassMetadata, error) {
	// the oat side only looks methods up by name, so listing them needs the
	// dex module's own tables
	var module *dex.File
	if withMethods {
		var err error
		if module, err = dex.Open(df.DexBytes()); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", df.Location())
		}
	}

	var classes []ClassMetadata
	for i := uint32(0); i < df.NumClassDefs(); i++ {
		c, err := df.Class(i)
		if err != nil {
			return nil, err
		}
		cm := ClassMetadata{
			Index:           i,
			Descriptor:      c.Descriptor(),
			Name:            dex.PrettyDescriptor(c.Descriptor()),
			Status:          c.Status().String(),
			Type:            c.Type().String(),
			Offset:          c.Offset(),
			CompiledMethods: c.NumCompiledMethods(),
		}
		if module != nil {
			dc, err := module.Class(i)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing class %d of %s", i, df.Location())
			}
			if cm.Superclass, err = dc.Superclass(); err != nil {
				return nil, err
			}
			for _, dm := range dc.Methods() {
				find := c.FindVirtualMethod
				if dm.IsDirect(dc) {
					find = c.FindDirectMethod
				}
				m, err := find(dm.Name(), dm.Signature())
				if err != nil {
					return nil, err
				}
				mm, err := methodMetadata(m, disasm)
				if err != nil {
					return nil, err
				}
				mm.DexLocation = df.Location()
				mm.AccessFlags = dm.AccessFlags.String()
				cm.Methods = append(cm.Methods, mm)
			}
		}
		classes = append(classes, cm)
	}
	return classes, nil
}

func methodMetadata(m *oat.Method, disasm int) (MethodMetadata, error) {
	mm := MethodMetadata{
		Class:            m.Class().Descriptor(),
		Name:             m.Name(),
		Signature:        m.Signature(),
		ClassMethodIndex: m.ClassMethodIndex(),
		Compiled:         m.HasQuickCompiledCode(),
	}
	if !mm.Compiled {
		return mm, nil
	}

	offsets, _ := m.Offsets()
	entry, _ := m.EntryPoint()
	code, _ := m.CodePointer()
	mm.CodeOffset = offsets.CodeOffset
	mm.GcMapOffset = offsets.GcMapOffset
	mm.EntryPoint = uint64(entry)
	mm.CodePointer = uint64(code)

	hdr, err := m.QuickHeader()
	if err != nil {
		return MethodMetadata{}, err
	}
	mm.FrameSize = hdr.FrameSizeInBytes
	mm.CoreSpillMask = hdr.CoreSpillMask
	mm.FpSpillMask = hdr.FpSpillMask
	mm.CodeSize = hdr.CodeSize

	if disasm > 0 {
		b, err := m.Code()
		if err != nil {
			return MethodMetadata{}, err
		}
		isa := m.Class().DexFile().Image().Header().InstructionSet()
		insts, err := objfile.Disassemble(isa, mm.CodePointer, b)
		if errors.Is(err, objfile.ErrUnsupportedISA) {
			logrus.WithField("isa", isa.String()).Warn("cannot disassemble compiled code")
			return mm, nil
		}
		if err != nil {
			return MethodMetadata{}, err
		}
		if len(insts) > disasm {
			insts = insts[:disasm]
		}
		for _, inst := range insts {
			mm.Disassembly = append(mm.Disassembly, inst.String())
		}
	}
	return mm, nil
}

func printMethodForHuman(w io.Writer, prefix string, m MethodMetadata) {
	fmt.Fprintf(w, "%-28s %s->%s%s\n", prefix+"Name:", m.Class, m.Name, m.Signature)
	if m.AccessFlags != "" {
		fmt.Fprintf(w, "%-28s %s\n", prefix+"AccessFlags:", m.AccessFlags)
	}
	if !m.Compiled {
		fmt.Fprintf(w, "%-28s %s\n", prefix+"Code:", "<INTERPRETED>")
		return
	}
	fmt.Fprintf(w, "%-28s 0x%x\n", prefix+"EntryPoint:", m.EntryPoint)
	fmt.Fprintf(w, "%-28s 0x%x\n", prefix+"CodePointer:", m.CodePointer)
	fmt.Fprintf(w, "%-28s %d\n", prefix+"CodeSize:", m.CodeSize)
	fmt.Fprintf(w, "%-28s %d\n", prefix+"FrameSize:", m.FrameSize)
	for _, line := range m.Disassembly {
		fmt.Fprintf(w, "    %s\n", line)
	}
}

func printForHuman(w io.Writer, metadata ExtractMetadata) {
	fmt.Fprintln(w, "----ARTIST----")
	fmt.Fprintln(w, "Some information is omitted, for a full listing do not use human view")
	fmt.Fprintf(w, "%-28s %s\n", "File:", metadata.File.Name)
	fmt.Fprintf(w, "%-28s %s\n", "Kind:", metadata.File.Kind)

	if metadata.Candidates != nil || metadata.File.ImageOffset < 0 {
		fmt.Fprintln(w, "\n-HEADER CANDIDATES-")
		if len(metadata.Candidates) == 0 {
			fmt.Fprintln(w, "<NO OAT HEADERS FOUND>")
		}
		for _, c := range metadata.Candidates {
			fmt.Fprintf(w, "%-28s %s supported=%t\n", fmt.Sprintf("0x%x:", c.Offset), c.Version, c.Supported)
		}
		if metadata.File.ImageOffset < 0 {
			return
		}
	}

	fmt.Fprintf(w, "%-28s 0x%x\n", "Begin:", metadata.File.Begin)
	fmt.Fprintf(w, "%-28s 0x%x\n", "ImageOffset:", metadata.File.ImageOffset)
	fmt.Fprintln(w, "\n-HEADER-")
	fmt.Fprintf(w, "%-28s %s\n", "Version:", metadata.Header.Version)
	fmt.Fprintf(w, "%-28s %s\n", "InstructionSet:", metadata.Header.InstructionSet)
	fmt.Fprintf(w, "%-28s 0x%x\n", "Checksum:", metadata.Header.Checksum)
	fmt.Fprintf(w, "%-28s %d\n", "DexFileCount:", metadata.Header.DexFileCount)
	fmt.Fprintf(w, "%-28s 0x%x\n", "ExecutableOffset:", metadata.Header.ExecutableOffset)

	fmt.Fprintln(w, "\n  -KEY VALUE STORE-")
	if len(metadata.KeyValues) > 0 {
		for _, kv := range metadata.KeyValues {
			fmt.Fprintf(w, "  %-26s %s\n", kv.Key, kv.Value)
		}
	} else {
		fmt.Fprintln(w, "  <NO KEY VALUES PRESENT>")
	}

	if metadata.DexFiles != nil {
		fmt.Fprintln(w, "\n-DEX FILES-")
		for _, df := range metadata.DexFiles {
			dfPrefix := fmt.Sprintf("Dex%d.", df.Index)
			fmt.Fprintf(w, "%-28s %s\n", dfPrefix+"Location:", df.Location)
			fmt.Fprintf(w, "%-28s 0x%x\n", dfPrefix+"VA:", df.DexVA)
			fmt.Fprintf(w, "%-28s %d\n", dfPrefix+"ClassDefs:", df.ClassDefs)
			for _, c := range df.Classes {
				cPrefix := fmt.Sprintf("%sClass%d.", dfPrefix, c.Index)
				fmt.Fprintf(w, "%-28s %s (%s, %s)\n", cPrefix+"Name:", c.Name, c.Status, c.Type)
				for _, m := range c.Methods {
					printMethodForHuman(w, fmt.Sprintf("%sM%d.", cPrefix, m.ClassMethodIndex), m)
				}
			}
		}
	}

	if metadata.Methods != nil {
		fmt.Fprintln(w, "\n-METHODS-")
		for i, m := range metadata.Methods {
			printMethodForHuman(w, fmt.Sprintf("Method%d.", i), m)
		}
	}
}

func DataToJson(data interface{}) string {
	jsonBytes, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return "{\"error\": \"failed to format output\"}"
	}
	return string(jsonBytes)
}

func TextToJson(key string, text string) string {
	jsonBytes, err := json.Marshal(map[string]string{key: text})
	if err != nil {
		return "{\"error\": \"failed to format output\"}"
	}
	return string(jsonBytes)
}

var profileModes = map[string]func(*profile.Profile){
	"cpu":   profile.CPUProfile,
	"mem":   profile.MemProfile,
	"block": profile.BlockProfile,
	"trace": profile.TraceProfile,
}

func profileModeNames() []string {
	var names []string
	for k := range profileModes {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func newApp() *cli.App {
	var profiler interface{ Stop() }

	fileCommand := func(name, usage string, flags []cli.Flag, query func(c *cli.Context) Query) *cli.Command {
		return &cli.Command{
			Name:      name,
			Usage:     usage,
			ArgsUsage: "<file>",
			Flags:     flags,
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return errors.New("filepath must be provided as first argument")
				}
				q := query(c)
				q.Base = c.Uint64("base")
				q.Offset = c.Int("offset")

				metadata, err := main_impl(c.Args().First(), q)
				if err != nil {
					return errors.Wrap(err, "failed to parse file")
				}
				if c.Bool("human") {
					printForHuman(c.App.Writer, metadata)
				} else {
					fmt.Fprintln(c.App.Writer, DataToJson(metadata))
				}
				return nil
			},
		}
	}

	dexFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "dex", Usage: "Restrict to the dex file with this exact location"}
	}
	disasmFlag := func() cli.Flag {
		return &cli.IntFlag{Name: "disasm", Usage: "Disassemble up to `N` instructions of compiled code"}
	}

	return &cli.App{
		Name:  "ARTIST",
		Usage: "Navigate Android Runtime OAT images: dex files, classes and compiled methods",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "Set log level (panic, fatal, error, warn, info, debug, trace)", EnvVars: []string{"ARTIST_LOG_LEVEL"}},
			&cli.BoolFlag{Name: "human", Usage: "Human view, print information flat rather than json, some information is omitted for clarity", EnvVars: []string{"ARTIST_HUMAN"}},
			&cli.Uint64Flag{Name: "base", Usage: "Address the image is loaded at; a load bias for ELF files", EnvVars: []string{"ARTIST_BASE"}},
			&cli.IntFlag{Name: "offset", Value: -1, Usage: "File offset of the oat header in a raw dump, skips the signature scan"},
			&cli.StringFlag{Name: "profile", Usage: "Profile the run (" + strings.Join(profileModeNames(), ", ") + ")", EnvVars: []string{"ARTIST_PROFILE"}},
			&cli.StringFlag{Name: "profile-path", Value: ".", Usage: "Directory profiles are written to"},
		},
		Before: func(c *cli.Context) error {
			level, err := logrus.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			logrus.SetLevel(level)

			if mode := c.String("profile"); mode != "" {
				fn, ok := profileModes[mode]
				if !ok {
					return errors.Errorf("unknown profile mode %q", mode)
				}
				profiler = profile.Start(fn, profile.ProfilePath(c.String("profile-path")), profile.Quiet, profile.NoShutdownHook)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if profiler != nil {
				profiler.Stop()
				profiler = nil
			}
			return nil
		},
		Commands: []*cli.Command{
			fileCommand("header", "Print the oat header and key-value store", nil,
				func(c *cli.Context) Query { return Query{} }),
			fileCommand("dexfiles", "List the dex file records", []cli.Flag{dexFlag()},
				func(c *cli.Context) Query { return Query{DexFiles: true, Dex: c.String("dex")} }),
			fileCommand("classes", "List the classes of every dex file", []cli.Flag{
				dexFlag(),
				&cli.BoolFlag{Name: "methods", Usage: "List every method of each class with its compiled code"},
				disasmFlag(),
			}, func(c *cli.Context) Query {
				return Query{Classes: true, Methods: c.Bool("methods"), Dex: c.String("dex"), Disasm: c.Int("disasm")}
			}),
			fileCommand("method", "Locate the compiled code of one method", []cli.Flag{
				dexFlag(),
				&cli.StringFlag{Name: "class", Required: true, Usage: "Class type descriptor, e.g. Lcom/example/Main;"},
				&cli.StringFlag{Name: "method", Required: true, Usage: "Method name"},
				&cli.StringFlag{Name: "signature", Required: true, Usage: "Method signature, e.g. (I)V"},
				disasmFlag(),
			}, func(c *cli.Context) Query {
				return Query{
					Dex:       c.String("dex"),
					Class:     c.String("class"),
					Method:    c.String("method"),
					Signature: c.String("signature"),
					Disasm:    c.Int("disasm"),
				}
			}),
			fileCommand("scan", "List every oat header signature in a raw dump", nil,
				func(c *cli.Context) Query { return Query{Scan: true} }),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Println(TextToJson("error", err.Error()))
		os.Exit(1)
	}
}

// Serialization and deserialization of compiled Chunks to the .swbc
// bytecode archive format.
//
// Binary Format Layout:
//
//	[Header]
//	  Magic Number (4 bytes): "SWBC" (0x53574243)
//	  Version (4 bytes): format version (currently 1)
//	  Flags (4 bytes): reserved for future use
//	  Header size (4 bytes): byte offset where the constants section begins
//
//	[Constants Section]
//	  Count (4 bytes)
//	  For each constant: Tag (1 byte) + type-specific payload
//
//	[Code Section]
//	  Count (4 bytes)
//	  For each instruction: Opcode (1 byte), Operand (4 bytes, signed),
//	  upvalue count (1 byte) + that many (isLocal byte, index byte)
//	  pairs, source line (4 bytes)
//
// Constant Tags:
//
//	0x00 = Nil (0 bytes)
//	0x01 = Bool (1 byte)
//	0x02 = Number (8 bytes, float64)
//	0x03 = String (4-byte length + UTF-8 bytes)
//	0x04 = Integer (8 bytes, int64)
//	0x05 = Function (name, arity, upvalue count, then a nested Chunk)
//	0x06 = StructType (name, field-name list)
//
// Design Rationale:
//
// Little-endian fixed-width fields keep decoding branch-free; the
// constants section is tagged rather than typed-per-slot so a single
// decode loop handles every kind without the reader needing a schema.
// Functions nest a whole Chunk recursively, which is how closures
// compiled into an outer chunk's constant pool round-trip intact.
package bytecode

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/kristofer/smogvm/pkg/object"
	"github.com/kristofer/smogvm/pkg/value"
)

const (
	magicNumber   uint32 = 0x53574243 // "SWBC"
	formatVersion uint32 = 1
	headerSize    uint32 = 16
)

const (
	tagNil byte = iota
	tagBool
	tagNumber
	tagString
	tagInteger
	tagFunction
	tagStructType
)

// stringConstant is satisfied by *intern.Entry without this package
// importing intern (which would otherwise need bytecode in turn for
// nothing package intern actually uses).
type stringConstant interface {
	Bytes() []byte
}

// structTypeConstant is satisfied by *object.StructType.
type structTypeConstant interface {
	StructFields() (string, []string)
}

// Encode writes c to w in the archive format described above.
func Encode(c *Chunk, w io.Writer) error {
	for _, field := range []uint32{magicNumber, formatVersion, 0, headerSize} {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			return errors.Wrap(err, "bytecode: writing header")
		}
	}
	if err := encodeConstants(c.Constants, w); err != nil {
		return errors.Wrap(err, "bytecode: writing constants")
	}
	if err := encodeCode(c.Instructions, w); err != nil {
		return errors.Wrap(err, "bytecode: writing code")
	}
	return nil
}

func encodeConstants(constants []value.Value, w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(constants))); err != nil {
		return err
	}
	for _, c := range constants {
		if err := encodeConstant(c, w); err != nil {
			return err
		}
	}
	return nil
}

func encodeConstant(v value.Value, w io.Writer) error {
	switch t := v.(type) {
	case value.Nil:
		_, err := w.Write([]byte{tagNil})
		return err
	case value.Bool:
		b := byte(0)
		if bool(t) {
			b = 1
		}
		_, err := w.Write([]byte{tagBool, b})
		return err
	case value.Integer:
		if _, err := w.Write([]byte{tagInteger}); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, int64(t))
	case value.Number:
		if _, err := w.Write([]byte{tagNumber}); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, float64(t))
	case stringConstant:
		if _, err := w.Write([]byte{tagString}); err != nil {
			return err
		}
		return writeBytes(w, t.Bytes())
	case *Function:
		if _, err := w.Write([]byte{tagFunction}); err != nil {
			return err
		}
		if err := writeString(w, t.Name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(t.Arity)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(t.UpvalueCount)); err != nil {
			return err
		}
		return Encode(t.Chunk, w)
	case structTypeConstant:
		name, fields := t.StructFields()
		if _, err := w.Write([]byte{tagStructType}); err != nil {
			return err
		}
		if err := writeString(w, name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(fields))); err != nil {
			return err
		}
		for _, f := range fields {
			if err := writeString(w, f); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.Errorf("bytecode: cannot encode constant of kind %v", v.Kind())
	}
}

func writeString(w io.Writer, s string) error { return writeBytes(w, []byte(s)) }

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func encodeCode(insts []Instruction, w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(insts))); err != nil {
		return err
	}
	for _, inst := range insts {
		if _, err := w.Write([]byte{byte(inst.Op)}); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(inst.Operand)); err != nil {
			return err
		}
		if _, err := w.Write([]byte{byte(len(inst.Upvalues))}); err != nil {
			return err
		}
		for _, uv := range inst.Upvalues {
			isLocal := byte(0)
			if uv.IsLocal {
				isLocal = 1
			}
			if _, err := w.Write([]byte{isLocal, byte(uv.Index)}); err != nil {
				return err
			}
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(inst.Line)); err != nil {
			return err
		}
	}
	return nil
}

// InternFunc interns decoded string bytes so a deserialized Chunk's
// string constants share identity with every other string the VM
// interns (see package intern).
type InternFunc func([]byte) value.Value

// Decode reads a Chunk previously written by Encode.
func Decode(r io.Reader, intern InternFunc) (*Chunk, error) {
	var magic, version, flags, hdrSize uint32
	for _, p := range []*uint32{&magic, &version, &flags, &hdrSize} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return nil, errors.Wrap(err, "bytecode: reading header")
		}
	}
	_ = flags
	_ = hdrSize
	if magic != magicNumber {
		return nil, errors.Errorf("bytecode: bad magic %x, not a swbc archive", magic)
	}
	if version != formatVersion {
		return nil, errors.Errorf("bytecode: unsupported format version %d", version)
	}

	constants, err := decodeConstants(r, intern)
	if err != nil {
		return nil, errors.Wrap(err, "bytecode: reading constants")
	}
	insts, err := decodeCode(r)
	if err != nil {
		return nil, errors.Wrap(err, "bytecode: reading code")
	}
	return &Chunk{Instructions: insts, Constants: constants}, nil
}

func decodeConstants(r io.Reader, intern InternFunc) ([]value.Value, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	out := make([]value.Value, count)
	for i := range out {
		v, err := decodeConstant(r, intern)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func decodeConstant(r io.Reader, intern InternFunc) (value.Value, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, err
	}
	switch tag[0] {
	case tagNil:
		return value.Nil{}, nil
	case tagBool:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		return value.Bool(b[0] != 0), nil
	case tagInteger:
		var n int64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		return value.Integer(n), nil
	case tagNumber:
		var f float64
		if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
			return nil, err
		}
		return value.Number(f), nil
	case tagString:
		buf, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		return intern(buf), nil
	case tagFunction:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		var arity, upvalCount uint32
		if err := binary.Read(r, binary.LittleEndian, &arity); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &upvalCount); err != nil {
			return nil, err
		}
		chunk, err := Decode(r, intern)
		if err != nil {
			return nil, err
		}
		return &Function{Name: name, Arity: int(arity), UpvalueCount: int(upvalCount), Chunk: chunk}, nil
	case tagStructType:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		fields := make([]string, n)
		for i := range fields {
			f, err := readString(r)
			if err != nil {
				return nil, err
			}
			fields[i] = f
		}
		return object.NewStructType(name, fields), nil
	default:
		return nil, errors.Errorf("bytecode: unknown constant tag %d", tag[0])
	}
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func decodeCode(r io.Reader) ([]Instruction, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	out := make([]Instruction, count)
	for i := range out {
		var opByte [1]byte
		if _, err := io.ReadFull(r, opByte[:]); err != nil {
			return nil, err
		}
		var operand int32
		if err := binary.Read(r, binary.LittleEndian, &operand); err != nil {
			return nil, err
		}
		var upvalCount [1]byte
		if _, err := io.ReadFull(r, upvalCount[:]); err != nil {
			return nil, err
		}
		var upvalues []UpvalueRef
		if upvalCount[0] > 0 {
			upvalues = make([]UpvalueRef, upvalCount[0])
		}
		for j := range upvalues {
			var pair [2]byte
			if _, err := io.ReadFull(r, pair[:]); err != nil {
				return nil, err
			}
			upvalues[j] = UpvalueRef{IsLocal: pair[0] != 0, Index: int(pair[1])}
		}
		var line uint32
		if err := binary.Read(r, binary.LittleEndian, &line); err != nil {
			return nil, err
		}
		out[i] = Instruction{Op: Opcode(opByte[0]), Operand: int(operand), Upvalues: upvalues, Line: int(line)}
	}
	return out, nil
}

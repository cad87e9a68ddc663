package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Table represents an AMQP field table
type Table map[string]interface{}

// ReadShortString reads a short string (max 255 bytes)
func ReadShortString(r io.Reader) (string, error) {
	var length uint8
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}

	return string(buf), nil
}

// WriteShortString writes a short string
func WriteShortString(w io.Writer, s string) error {
	if len(s) > 255 {
		return fmt.Errorf("short string too long: %d", len(s))
	}

	if err := binary.Write(w, binary.BigEndian, uint8(len(s))); err != nil {
		return err
	}

	_, err := io.WriteString(w, s)
	return err
}

// ReadLongString reads a long string
func ReadLongString(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// WriteLongString writes a long string
func WriteLongString(w io.Writer, data []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}

	_, err := w.Write(data)
	return err
}

// ReadTable reads an AMQP field table. The returned table owns all of its
// keys and values; nothing aliases the source reader's backing storage.
func ReadTable(r io.Reader) (Table, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}

	if length == 0 {
		return Table{}, nil
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	table := make(Table)
	buf := bytes.NewReader(data)

	for buf.Len() > 0 {
		name, err := ReadShortString(buf)
		if err != nil {
			return nil, err
		}

		value, err := readFieldValue(buf)
		if err != nil {
			return nil, err
		}

		table[name] = value
	}

	return table, nil
}

// WriteTable writes an AMQP field table
func WriteTable(w io.Writer, table Table) error {
	if len(table) == 0 {
		return binary.Write(w, binary.BigEndian, uint32(0))
	}

	// Encode the contents first to learn the table length
	var buf bytes.Buffer
	for name, value := range table {
		if err := WriteShortString(&buf, name); err != nil {
			return err
		}

		if err := writeFieldValue(&buf, value); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.BigEndian, uint32(buf.Len())); err != nil {
		return err
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// readFieldValue reads a field value based on its type indicator
func readFieldValue(r io.Reader) (interface{}, error) {
	var indicator byte
	if err := binary.Read(r, binary.BigEndian, &indicator); err != nil {
		return nil, err
	}

	switch indicator {
	case 't': // Boolean
		var b uint8
		if err := binary.Read(r, binary.BigEndian, &b); err != nil {
			return nil, err
		}
		return b != 0, nil

	case 'b': // Signed 8-bit
		var v int8
		err := binary.Read(r, binary.BigEndian, &v)
		return v, err

	case 'B': // Unsigned 8-bit
		var v uint8
		err := binary.Read(r, binary.BigEndian, &v)
		return v, err

	case 's': // Signed 16-bit
		var v int16
		err := binary.Read(r, binary.BigEndian, &v)
		return v, err

	case 'u': // Unsigned 16-bit
		var v uint16
		err := binary.Read(r, binary.BigEndian, &v)
		return v, err

	case 'I': // Signed 32-bit
		var v int32
		err := binary.Read(r, binary.BigEndian, &v)
		return v, err

	case 'i': // Unsigned 32-bit
		var v uint32
		err := binary.Read(r, binary.BigEndian, &v)
		return v, err

	case 'l': // Signed 64-bit
		var v int64
		err := binary.Read(r, binary.BigEndian, &v)
		return v, err

	case 'f': // 32-bit float
		var v float32
		err := binary.Read(r, binary.BigEndian, &v)
		return v, err

	case 'd': // 64-bit float
		var v float64
		err := binary.Read(r, binary.BigEndian, &v)
		return v, err

	case 'S': // Long string
		data, err := ReadLongString(r)
		if err != nil {
			return nil, err
		}
		return string(data), nil

	case 'A': // Array
		return readArray(r)

	case 'T': // Timestamp
		var ts int64
		if err := binary.Read(r, binary.BigEndian, &ts); err != nil {
			return nil, err
		}
		return time.Unix(ts, 0), nil

	case 'F': // Nested table
		return ReadTable(r)

	case 'V': // Void/null
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown field type: %c", indicator)
	}
}

// writeFieldValue writes a field value with its type indicator
func writeFieldValue(w io.Writer, value interface{}) error {
	writeTagged := func(tag byte, v interface{}) error {
		if err := binary.Write(w, binary.BigEndian, tag); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, v)
	}

	switch v := value.(type) {
	case bool:
		var b uint8
		if v {
			b = 1
		}
		return writeTagged('t', b)

	case int8:
		return writeTagged('b', v)

	case uint8:
		return writeTagged('B', v)

	case int16:
		return writeTagged('s', v)

	case uint16:
		return writeTagged('u', v)

	case int32:
		return writeTagged('I', v)

	case uint32:
		return writeTagged('i', v)

	case int64:
		return writeTagged('l', v)

	case int: // int travels as a signed 32-bit field
		return writeTagged('I', int32(v))

	case float32:
		return writeTagged('f', v)

	case float64:
		return writeTagged('d', v)

	case string:
		if err := binary.Write(w, binary.BigEndian, byte('S')); err != nil {
			return err
		}
		return WriteLongString(w, []byte(v))

	case []byte:
		if err := binary.Write(w, binary.BigEndian, byte('S')); err != nil {
			return err
		}
		return WriteLongString(w, v)

	case time.Time:
		return writeTagged('T', v.Unix())

	case Table:
		if err := binary.Write(w, binary.BigEndian, byte('F')); err != nil {
			return err
		}
		return WriteTable(w, v)

	case map[string]interface{}:
		if err := binary.Write(w, binary.BigEndian, byte('F')); err != nil {
			return err
		}
		return WriteTable(w, Table(v))

	case []interface{}:
		if err := binary.Write(w, binary.BigEndian, byte('A')); err != nil {
			return err
		}
		return writeArray(w, v)

	case nil:
		return binary.Write(w, binary.BigEndian, byte('V'))

	default:
		return fmt.Errorf("unsupported field value type: %T", value)
	}
}

// readArray reads an array of field values
func readArray(r io.Reader) ([]interface{}, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}

	if length == 0 {
		return []interface{}{}, nil
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	var values []interface{}
	buf := bytes.NewReader(data)

	for buf.Len() > 0 {
		value, err := readFieldValue(buf)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}

	return values, nil
}

// writeArray writes an array of field values
func writeArray(w io.Writer, values []interface{}) error {
	var buf bytes.Buffer

	for _, value := range values {
		if err := writeFieldValue(&buf, value); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.BigEndian, uint32(buf.Len())); err != nil {
		return err
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// Package codec provides record decoding and encoding for bag files.
//
// A bag file starts with a version line followed by a sequence of records:
//
//	#ROSBAG V2.0\n
//	[HeaderLen(4)][Header][DataLen(4)][Data]
//	[HeaderLen(4)][Header][DataLen(4)][Data]
//	...
//
// All lengths are little-endian uint32 values. A header is a run of fields:
//
//	[FieldLen(4)][name=value]
//
// Field values are raw bytes. Integer fields are little-endian and Time
// fields are encoded as [Sec(4)][Nsec(4)]. Every record carries a one byte
// "op" field that identifies its kind:
//
//	0x02 message data   conn, time
//	0x03 bag header     index_pos, conn_count, chunk_count
//	0x04 index data     ver, conn, count
//	0x05 chunk          compression, size
//	0x06 chunk info     ver, chunk_pos, start_time, end_time, count
//	0x07 connection     conn, topic
//
// # Usage
//
// Decode a record held in memory:
//
//	c := codec.NewRecordCodec()
//	rec, err := c.Decode(buf, 0)
//	if err != nil {
//	    return err // errors.Is(err, bagerr.ErrMalformedRecord)
//	}
//	conn, err := rec.Header.Uint32(codec.FieldConn)
//
// Records inside a decompressed chunk are walked with a Cursor. Records in a
// file are read header-first with ReadHeaderAt so large data blocks can be
// skipped without being read.
//
// # Error Handling
//
// Any declared length that exceeds the remaining input, a missing "op" or
// a missing op-specific required field fails with a MalformedRecord error
// carrying the offending offset. A bad version line fails with
// InvalidFormat. After an error the read position is unspecified and the
// caller must reseek before parsing further.
//
// # Thread Safety
//
// RecordCodec instances are stateless and safe for concurrent use. A
// Cursor is not.
package codec

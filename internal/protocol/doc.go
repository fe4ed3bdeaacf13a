// Package protocol implements the binary frame format spoken by the streaming
// speech-synthesis service.
//
// A frame is a 3-byte base header padded to HeaderSize*4 bytes, followed by optional
// fields whose presence depends only on the message type, the flag nibble and the
// event number, and a length-prefixed payload. All integers are big-endian.
//
//	byte0 = version<<4 | headerSize
//	byte1 = type<<4    | flag
//	byte2 = serialization<<4 | compression
//	[event:4]                 flag == WithEvent
//	[len:4][session id]       flag == WithEvent, event outside the connection scope
//	[sequence:4]              content types with PositiveSeq / NegativeSeq
//	[error code:4]            type == Error
//	[len:4][connect id]       ConnectionStarted, ConnectionFailed, ConnectionFinished
//	[len:4][payload]
package protocol

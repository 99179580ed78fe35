package sx1276

// Register addresses, mode bits, and IRQ flags, carried over bit-exact
// from the teacher's pkg/nodes/gpio/lora_sx1276.go — these are physical
// constants of the SX1276 silicon, not teacher style, so they are kept
// verbatim rather than rewritten.
const (
	regFifo          = 0x00
	regOpMode        = 0x01
	regFrfMsb        = 0x06
	regFrfMid        = 0x07
	regFrfLsb        = 0x08
	regPaConfig      = 0x09
	regOcp           = 0x0B
	regLna           = 0x0C
	regFifoAddrPtr   = 0x0D
	regFifoTxBase    = 0x0E
	regFifoRxBase    = 0x0F
	regFifoRxCurrent = 0x10
	regIrqFlags      = 0x12
	regRxNbBytes     = 0x13
	regPktSnrValue   = 0x19
	regPktRssiValue  = 0x1A
	regModemConfig1  = 0x1D
	regModemConfig2  = 0x1E
	regSymbTimeout   = 0x1F
	regPreambleMsb   = 0x20
	regPreambleLsb   = 0x21
	regPayloadLength = 0x22
	regModemConfig3  = 0x26
	regDetectOptimize = 0x31
	regInvertIQ      = 0x33
	regDetectThresh  = 0x37
	regSyncWord      = 0x39
	regDioMapping1   = 0x40
	regVersion       = 0x42
	regPaDac         = 0x4D
)

const (
	modeSleep    = 0x00
	modeStandby  = 0x01
	modeFsTx     = 0x02
	modeTx       = 0x03
	modeFsRx     = 0x04
	modeRxCont   = 0x05
	modeRxSingle = 0x06
	modeCad      = 0x07
	modeLongRangeAccess = 0x80 // LoRa-mode bit, OR'd into every mode write
)

const (
	irqRxTimeout       = 0x80
	irqRxDone          = 0x40
	irqPayloadCrcError = 0x20
	irqValidHeader     = 0x10
	irqTxDone          = 0x08
	irqCadDone         = 0x04
	irqFhssChangeChan  = 0x02
	irqCadDetected     = 0x01
)

const expectedChipVersion = 0x12

const fXosc = 32_000_000.0
const frfStep = fXosc / 524288.0 // F_XOSC / 2^19, ~61.035 Hz

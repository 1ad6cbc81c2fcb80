package types

// Tag is the value of the "type" field that every protocol message carries.
type Tag string

// Client -> Server
//
// NULL:            {} (calibration probe)
// FRAME:           dataURL: string, identity: number, ID: number
// ALL_STATE:       images: Image[], people: string[], training: boolean
// ADD_PERSON:      val: string
// TRAINING:        val: boolean
// REQ_TSNE:        people: string[]
// UPDATE_IDENTITY: hash: string, idx: number
// REMOVE_IMAGE:    hash: string
// INFO:            name, mail, mobile, company: string
// STOPPED_ACK:     name, mail: string
// register_click:  val: string
const (
	TagNull           Tag = "NULL"
	TagFrame          Tag = "FRAME"
	TagAllState       Tag = "ALL_STATE"
	TagAddPerson      Tag = "ADD_PERSON"
	TagTraining       Tag = "TRAINING"
	TagReqTSNE        Tag = "REQ_TSNE"
	TagUpdateIdentity Tag = "UPDATE_IDENTITY"
	TagRemoveImage    Tag = "REMOVE_IMAGE"
	TagInfo           Tag = "INFO"
	TagStoppedAck     Tag = "STOPPED_ACK"
	TagRegisterClick  Tag = "register_click"
)

// Server -> Client
//
// NULL:                {} (probe echo)
// PROCESSED:           {}
// WARNING:             message: string
// STORED_PAGE2:        id: number
// END_FACE_COLLECTION: name?, mail?: string
// NEW_IMAGE:           hash: string, identity: number, content: number[] (96x96 BGR), representation: number[]
// IDENTITIES:          identities: number[]
// ANNOTATED:           content: data URL
// TSNE_DATA:           content: data URL
const (
	TagProcessed         Tag = "PROCESSED"
	TagWarning           Tag = "WARNING"
	TagStoredPage2       Tag = "STORED_PAGE2"
	TagEndFaceCollection Tag = "END_FACE_COLLECTION"
	TagNewImage          Tag = "NEW_IMAGE"
	TagIdentities        Tag = "IDENTITIES"
	TagAnnotated         Tag = "ANNOTATED"
	TagTSNEData          Tag = "TSNE_DATA"
)

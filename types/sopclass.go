package types

import "strings"

// DICOM Application Context Name (PS3.7 A.2.1)
const ApplicationContextUID = "1.2.840.10008.3.1.1.1"

// Verification Service
const VerificationSOPClass = "1.2.840.10008.1.1"

// Storage SOP Classes commonly proposed by modalities and archives
const (
	ComputedRadiographyImageStorage = "1.2.840.10008.5.1.4.1.1.1"
	CTImageStorage                  = "1.2.840.10008.5.1.4.1.1.2"
	EnhancedCTImageStorage          = "1.2.840.10008.5.1.4.1.1.2.1"
	MRImageStorage                  = "1.2.840.10008.5.1.4.1.1.4"
	EnhancedMRImageStorage          = "1.2.840.10008.5.1.4.1.1.4.1"
	UltrasoundImageStorage          = "1.2.840.10008.5.1.4.1.1.6.1"
	SecondaryCaptureImageStorage    = "1.2.840.10008.5.1.4.1.1.7"
	XRayAngiographicImageStorage    = "1.2.840.10008.5.1.4.1.1.12.1"
	NuclearMedicineImageStorage     = "1.2.840.10008.5.1.4.1.1.20"
	PositronEmissionTomographyImage = "1.2.840.10008.5.1.4.1.1.128"
	RTImageStorage                  = "1.2.840.10008.5.1.4.1.1.481.1"
)

// Query/Retrieve Information Models
const (
	PatientRootQueryRetrieveInformationModelFind      = "1.2.840.10008.5.1.4.1.2.1.1"
	PatientRootQueryRetrieveInformationModelMove      = "1.2.840.10008.5.1.4.1.2.1.2"
	PatientRootQueryRetrieveInformationModelGet       = "1.2.840.10008.5.1.4.1.2.1.3"
	StudyRootQueryRetrieveInformationModelFind        = "1.2.840.10008.5.1.4.1.2.2.1"
	StudyRootQueryRetrieveInformationModelMove        = "1.2.840.10008.5.1.4.1.2.2.2"
	StudyRootQueryRetrieveInformationModelGet         = "1.2.840.10008.5.1.4.1.2.2.3"
	PatientStudyOnlyQueryRetrieveInformationModelFind = "1.2.840.10008.5.1.4.1.2.3.1"
	PatientStudyOnlyQueryRetrieveInformationModelMove = "1.2.840.10008.5.1.4.1.2.3.2"
	PatientStudyOnlyQueryRetrieveInformationModelGet  = "1.2.840.10008.5.1.4.1.2.3.3"
)

const storageSOPClassPrefix = "1.2.840.10008.5.1.4.1.1."

// IsStorageSOPClass reports whether uid belongs to the Storage service class.
func IsStorageSOPClass(uid string) bool {
	return strings.HasPrefix(uid, storageSOPClassPrefix)
}

// IsQueryRetrieveSOPClass reports whether uid is one of the Q/R information models.
func IsQueryRetrieveSOPClass(uid string) bool {
	switch uid {
	case PatientRootQueryRetrieveInformationModelFind,
		PatientRootQueryRetrieveInformationModelMove,
		PatientRootQueryRetrieveInformationModelGet,
		StudyRootQueryRetrieveInformationModelFind,
		StudyRootQueryRetrieveInformationModelMove,
		StudyRootQueryRetrieveInformationModelGet,
		PatientStudyOnlyQueryRetrieveInformationModelFind,
		PatientStudyOnlyQueryRetrieveInformationModelMove,
		PatientStudyOnlyQueryRetrieveInformationModelGet:
		return true
	}
	return false
}

// IsRetrieveGetSOPClass reports whether uid is a C-GET information model.
// An SCU proposing one of these normally also asks for the SCP role of the
// storage classes it wants to receive.
func IsRetrieveGetSOPClass(uid string) bool {
	switch uid {
	case PatientRootQueryRetrieveInformationModelGet,
		StudyRootQueryRetrieveInformationModelGet,
		PatientStudyOnlyQueryRetrieveInformationModelGet:
		return true
	}
	return false
}

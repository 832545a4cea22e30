package vault

import (
	"context"
	"strings"
	"sync"

	"github.com/maynagashev/pawnvault/internal/gateway"
	"github.com/maynagashev/pawnvault/models"
)

// Имена операций реестра для ошибок и логов.
const (
	OpListVaults   = "list_vaults"
	OpCreateVault  = "create_vault"
	OpRenameVault  = "rename_vault"
	OpDeleteVault  = "delete_vault"
	OpUpdateVault  = "update_vault"
	OpGetPasswords = "get_passwords"
	OpAddEntry     = "add_password"
	OpUpdateEntry  = "update_password"
	OpDeleteEntry  = "delete_password"
	OpUnlock       = "unlock"
	OpSearch       = "search"
)

// Registry кэширует список хранилищ и выполняет операции над ними через бэкенд.
//
// Кэш меняется только после успешного ответа бэкенда. Ответы применяются
// в порядке выдачи запросов: ответ на более ранний запрос не перезапишет
// результат более позднего.
type Registry struct {
	gw gateway.Gateway

	mu      sync.Mutex
	vaults  []models.Vault
	issued  uint64 // Номер последнего выданного запроса
	applied uint64 // Номер запроса, результат которого лежит в кэше
}

// NewRegistry создает пустой реестр. Кэш заполняется вызовом List.
func NewRegistry(gw gateway.Gateway) *Registry {
	return &Registry{gw: gw}
}

// Vaults возвращает копию кэша в порядке создания.
func (r *Registry) Vaults() []models.Vault {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneVaults(r.vaults)
}

// Find ищет хранилище в кэше по имени.
func (r *Registry) Find(name string) (models.Vault, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.vaults {
		if v.Name == name {
			return v, true
		}
	}
	return models.Vault{}, false
}

// List запрашивает полный список хранилищ и заменяет им кэш.
// Если пока шел запрос, был применен более свежий результат, возвращается он.
func (r *Registry) List(ctx context.Context) ([]models.Vault, error) {
	seq := r.nextSeq()

	vaults, err := callGateway(OpListVaults, func() ([]models.Vault, error) {
		return r.gw.ListVaults(ctx)
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if seq > r.applied {
		r.vaults = cloneVaults(vaults)
		r.applied = seq
	}
	return cloneVaults(r.vaults), nil
}

// Create проверяет имя и подтверждение ключа локально и создает хранилище.
// Созданное хранилище добавляется в конец кэша.
func (r *Registry) Create(ctx context.Context, name string, masterKey, confirmMasterKey []byte) (models.Vault, error) {
	if strings.TrimSpace(name) == "" {
		return models.Vault{}, validationError("name", "имя хранилища не может быть пустым")
	}
	if len(masterKey) == 0 {
		return models.Vault{}, validationError("master_key", "мастер-ключ не может быть пустым")
	}
	if !keysEqual(masterKey, confirmMasterKey) {
		return models.Vault{}, validationError("confirm_master_key", "подтверждение мастер-ключа не совпадает")
	}

	created, err := callGateway(OpCreateVault, func() (models.Vault, error) {
		return r.gw.CreateVault(ctx, gateway.CreateVaultArgs{
			Name:             name,
			MasterKey:        masterKey,
			ConfirmMasterKey: confirmMasterKey,
		})
	})
	if err != nil {
		return models.Vault{}, err
	}

	r.apply(func() {
		r.upsert("", created)
	})
	return created, nil
}

// Rename переименовывает хранилище и заменяет его запись в кэше.
func (r *Registry) Rename(ctx context.Context, oldName, newName string) (models.Vault, error) {
	if strings.TrimSpace(newName) == "" {
		return models.Vault{}, validationError("new_name", "новое имя хранилища не может быть пустым")
	}

	renamed, err := callGateway(OpRenameVault, func() (models.Vault, error) {
		return r.gw.RenameVault(ctx, gateway.RenameVaultArgs{Name: oldName, NewName: newName})
	})
	if err != nil {
		return models.Vault{}, err
	}

	r.apply(func() {
		r.upsert(oldName, renamed)
	})
	return renamed, nil
}

// Delete удаляет хранилище. Запись убирается из кэша только после подтверждения бэкенда.
func (r *Registry) Delete(ctx context.Context, name string) error {
	if name == "" {
		return validationError("name", "не указано хранилище для удаления")
	}

	err := callGatewayErr(OpDeleteVault, func() error {
		return r.gw.DeleteVault(ctx, gateway.DeleteVaultArgs{Name: name})
	})
	if err != nil {
		return err
	}

	r.apply(func() {
		kept := r.vaults[:0]
		for _, v := range r.vaults {
			if v.Name != name {
				kept = append(kept, v)
			}
		}
		r.vaults = kept
	})
	return nil
}

// UpdateMasterKey меняет мастер-ключ хранилища. Проверку старого ключа выполняет бэкенд.
func (r *Registry) UpdateMasterKey(
	ctx context.Context,
	name string,
	oldMasterKey, newMasterKey, confirmNewMasterKey []byte,
) error {
	if len(newMasterKey) == 0 {
		return validationError("new_master_key", "новый мастер-ключ не может быть пустым")
	}
	if !keysEqual(newMasterKey, confirmNewMasterKey) {
		return validationError("confirm_new_master_key", "подтверждение нового мастер-ключа не совпадает")
	}

	return callGatewayErr(OpUpdateVault, func() error {
		return r.gw.UpdateVault(ctx, gateway.UpdateVaultArgs{
			Name:                name,
			OldMasterKey:        oldMasterKey,
			NewMasterKey:        newMasterKey,
			ConfirmNewMasterKey: confirmNewMasterKey,
		})
	})
}

func (r *Registry) nextSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued++
	return r.issued
}

// apply применяет изменение кэша как самый свежий результат.
// Списки, запрошенные раньше, после этого отбрасываются.
func (r *Registry) apply(change func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued++
	r.applied = r.issued
	change()
}

// upsert заменяет запись с именем oldName или с тем же ID, иначе добавляет в конец.
// Список, прочитанный во время изменения, мог уже содержать результат.
func (r *Registry) upsert(oldName string, v models.Vault) {
	for i := range r.vaults {
		current := r.vaults[i]
		if (oldName != "" && current.Name == oldName) ||
			(v.ID != "" && current.ID == v.ID) ||
			current.Name == v.Name {
			r.vaults[i] = v
			return
		}
	}
	r.vaults = append(r.vaults, v)
}

func cloneVaults(vaults []models.Vault) []models.Vault {
	if vaults == nil {
		return []models.Vault{}
	}
	out := make([]models.Vault, len(vaults))
	copy(out, vaults)
	return out
}
